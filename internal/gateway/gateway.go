package gateway

import (
	"context"
	"net/http"
)

// NormalizedStatus はゲートウェイ固有の語彙を吸収した共通ステータス。
type NormalizedStatus string

const (
	StatusPending   NormalizedStatus = "PENDING"
	StatusCompleted NormalizedStatus = "COMPLETED"
	StatusFailed    NormalizedStatus = "FAILED"
	// ゲートウェイ側にまだ記録がない。エラーではなく値として返す。
	StatusUnknown NormalizedStatus = "UNKNOWN"
)

type CustomerContact struct {
	Phone string
	Email string
}

// Intent は決済intent作成の結果。RedirectURLへブラウザを送る。
type Intent struct {
	IntentID    string
	RedirectURL string
}

// StatusResult は状態照会の結果。
type StatusResult struct {
	Status               NormalizedStatus
	GatewayTransactionID string
}

// WebhookEvent はゲートウェイからの通知をパースしたもの。
type WebhookEvent struct {
	MerchantReference    string
	Status               NormalizedStatus
	GatewayTransactionID string
}

type RefundResult struct {
	RefundID string
	Status   string
}

// Client は決済ゲートウェイ1つ分のアダプタ。
// Reconciliationエンジンはこのインターフェースだけに依存し、
// ゲートウェイ固有のフィールド名を知らない。
type Client interface {
	Name() string

	// 認証クレデンシャルを取得（キャッシュあり・期限前に先回りで更新）
	Authenticate(ctx context.Context) (string, error)

	CreateIntent(ctx context.Context, merchantReference string, amount int64, currency string, customer CustomerContact) (Intent, error)

	QueryStatus(ctx context.Context, merchantReference string) (StatusResult, error)

	// 署名検証は必ず定数時間比較で行う
	VerifyWebhookSignature(headers http.Header, rawBody []byte) bool

	// 通知のエンベロープをゲートウェイ固有の形式からパースする
	ParseWebhook(rawBody []byte) (WebhookEvent, error)

	// 曖昧な失敗ではリトライせず、そのまま上へ報告する
	Refund(ctx context.Context, merchantReference string, amount int64) (RefundResult, error)
}
