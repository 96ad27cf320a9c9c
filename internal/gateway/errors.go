package gateway

import "fmt"

// AuthenticationError は認証エンドポイント到達不能・クレデンシャル拒否。
type AuthenticationError struct {
	Gateway string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Gateway, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// IntentCreationError はリトライ不可の失敗（リクエスト不正など）。
type IntentCreationError struct {
	Gateway string
	Err     error
}

func (e *IntentCreationError) Error() string {
	return fmt.Sprintf("%s: intent creation failed: %v", e.Gateway, e.Err)
}

func (e *IntentCreationError) Unwrap() error { return e.Err }

// GatewayUnavailableError はリトライ可能な失敗（5xx・タイムアウト）。
type GatewayUnavailableError struct {
	Gateway string
	Err     error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("%s: gateway unavailable: %v", e.Gateway, e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error { return e.Err }
