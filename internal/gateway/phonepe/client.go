package phonepe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"app/internal/gateway"

	"go.uber.org/zap"
)

const (
	productionBaseURL = "https://api.phonepe.com/apis/pg"
	productionAuthURL = "https://api.phonepe.com/apis/identity-manager"
	sandboxBaseURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	sandboxAuthURL    = "https://api-preprod.phonepe.com/apis/identity-manager"

	requestTimeout = 30 * time.Second

	// 期限の5分前には先回りでトークンを取り直す
	tokenRefreshMargin = 5 * time.Minute
)

type Config struct {
	MerchantID      string
	ClientID        string
	ClientSecret    string
	ClientVersion   string
	SaltKey         string
	SaltIndex       string
	Environment     string // SANDBOX / PRODUCTION
	WebhookUsername string
	WebhookPassword string
	RedirectURL     string

	// テスト用に差し替え可能
	BaseURL string
	AuthURL string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.MerchantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.SaltKey == "" {
		return nil, errors.New("phonepe credentials not configured")
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "1"
	}
	if cfg.SaltIndex == "" {
		cfg.SaltIndex = "1"
	}

	if cfg.BaseURL == "" || cfg.AuthURL == "" {
		if cfg.Environment == "PRODUCTION" {
			cfg.BaseURL = productionBaseURL
			cfg.AuthURL = productionAuthURL
		} else {
			cfg.BaseURL = sandboxBaseURL
			cfg.AuthURL = sandboxAuthURL
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}, nil
}

func (c *Client) Name() string { return "phonepe" }

// Authenticate はOAuthトークンを返す。キャッシュが有効なら再利用する。
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("client_version", c.cfg.ClientVersion)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.AuthURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &gateway.AuthenticationError{Gateway: c.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &gateway.AuthenticationError{Gateway: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &gateway.AuthenticationError{
			Gateway: c.Name(),
			Err:     fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"` // unixミリ秒
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", &gateway.AuthenticationError{Gateway: c.Name(), Err: err}
	}
	if tokenResp.AccessToken == "" {
		return "", &gateway.AuthenticationError{Gateway: c.Name(), Err: errors.New("empty access token")}
	}

	c.accessToken = tokenResp.AccessToken
	if tokenResp.ExpiresAt > 0 {
		c.tokenExpiry = time.UnixMilli(tokenResp.ExpiresAt)
	} else {
		c.tokenExpiry = time.Now().Add(15 * time.Minute)
	}

	c.logger.Info("phonepe token obtained", zap.Time("expires_at", c.tokenExpiry))
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// X-VERIFYチェックサム: sha256(base64Payload + endpoint + saltKey) + "###" + saltIndex
func (c *Client) checksum(payloadB64 string, endpoint string) string {
	sum := sha256.Sum256([]byte(payloadB64 + endpoint + c.cfg.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + c.cfg.SaltIndex
}

type payResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantOrderID    string `json:"merchantOrderId"`
		TransactionID      string `json:"transactionId"`
		State              string `json:"state"`
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

func (c *Client) CreateIntent(ctx context.Context, merchantReference string, amount int64, currency string, customer gateway.CustomerContact) (gateway.Intent, error) {
	payload := map[string]interface{}{
		"merchantId":      c.cfg.MerchantID,
		"merchantOrderId": merchantReference,
		"amount":          amount,
		"currency":        currency,
		"paymentFlow": map[string]interface{}{
			"flow":         "STANDARD_CHECKOUT",
			"redirectUrl":  c.cfg.RedirectURL,
			"redirectMode": "POST",
		},
		"expiresAt": 3600,
	}
	if customer.Phone != "" || customer.Email != "" {
		cust := map[string]string{}
		if customer.Phone != "" {
			cust["phoneNumber"] = customer.Phone
		}
		if customer.Email != "" {
			cust["email"] = customer.Email
		}
		payload["customer"] = cust
	}

	const endpoint = "/v1/pay"
	body, status, err := c.doSigned(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return gateway.Intent{}, err
	}

	if status >= 500 {
		return gateway.Intent{}, &gateway.GatewayUnavailableError{
			Gateway: c.Name(), Err: fmt.Errorf("pay returned %d", status),
		}
	}
	if status >= 400 {
		return gateway.Intent{}, &gateway.IntentCreationError{
			Gateway: c.Name(), Err: fmt.Errorf("pay returned %d: %s", status, string(body)),
		}
	}

	var resp payResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return gateway.Intent{}, &gateway.IntentCreationError{Gateway: c.Name(), Err: err}
	}
	redirect := resp.Data.InstrumentResponse.RedirectInfo.URL
	if !resp.Success || redirect == "" {
		return gateway.Intent{}, &gateway.IntentCreationError{
			Gateway: c.Name(), Err: fmt.Errorf("pay rejected: %s %s", resp.Code, resp.Message),
		}
	}

	c.logger.Info("phonepe intent created", zap.String("merchant_reference", merchantReference))
	return gateway.Intent{
		IntentID:    resp.Data.TransactionID,
		RedirectURL: redirect,
	}, nil
}

func (c *Client) QueryStatus(ctx context.Context, merchantReference string) (gateway.StatusResult, error) {
	endpoint := fmt.Sprintf("/v1/status/%s/%s", c.cfg.MerchantID, merchantReference)
	body, status, err := c.doSigned(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gateway.StatusResult{}, err
	}

	// 記録がまだない場合はUNKNOWN（呼び出し側がPENDING扱いで再試行）
	if status == http.StatusNotFound {
		return gateway.StatusResult{Status: gateway.StatusUnknown}, nil
	}
	if status >= 500 {
		return gateway.StatusResult{}, &gateway.GatewayUnavailableError{
			Gateway: c.Name(), Err: fmt.Errorf("status returned %d", status),
		}
	}
	if status >= 400 {
		return gateway.StatusResult{}, &gateway.GatewayUnavailableError{
			Gateway: c.Name(), Err: fmt.Errorf("status returned %d: %s", status, string(body)),
		}
	}

	var resp payResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return gateway.StatusResult{}, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
	}

	res := gateway.StatusResult{GatewayTransactionID: resp.Data.TransactionID}
	switch resp.Data.State {
	case "COMPLETED":
		res.Status = gateway.StatusCompleted
	case "FAILED":
		res.Status = gateway.StatusFailed
	case "PENDING":
		res.Status = gateway.StatusPending
	case "":
		res.Status = gateway.StatusUnknown
	default:
		res.Status = gateway.StatusPending
	}
	return res, nil
}

// webhookのAuthorizationヘッダは SHA256("username:password") との定数時間比較で検証する
func (c *Client) VerifyWebhookSignature(headers http.Header, rawBody []byte) bool {
	authz := strings.TrimSpace(headers.Get("Authorization"))
	if authz == "" {
		return false
	}
	sum := sha256.Sum256([]byte(c.cfg.WebhookUsername + ":" + c.cfg.WebhookPassword))
	expected := hex.EncodeToString(sum[:])
	return hmac.Equal([]byte(expected), []byte(authz))
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		MerchantOrderID string `json:"merchantOrderId"`
		State           string `json:"state"`
		TransactionID   string `json:"transactionId"`
	} `json:"payload"`
}

func (c *Client) ParseWebhook(rawBody []byte) (gateway.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return gateway.WebhookEvent{}, fmt.Errorf("invalid webhook body: %w", err)
	}
	if env.Payload.MerchantOrderID == "" {
		return gateway.WebhookEvent{}, errors.New("webhook missing merchantOrderId")
	}

	ev := gateway.WebhookEvent{
		MerchantReference:    env.Payload.MerchantOrderID,
		GatewayTransactionID: env.Payload.TransactionID,
	}
	switch env.Payload.State {
	case "COMPLETED":
		ev.Status = gateway.StatusCompleted
	case "FAILED":
		ev.Status = gateway.StatusFailed
	default:
		ev.Status = gateway.StatusPending
	}
	return ev, nil
}

func (c *Client) Refund(ctx context.Context, merchantReference string, amount int64) (gateway.RefundResult, error) {
	payload := map[string]interface{}{
		"merchantId":              c.cfg.MerchantID,
		"merchantRefundId":        "REFUND_" + merchantReference,
		"originalMerchantOrderId": merchantReference,
		"amount":                  amount,
		"currency":                "INR",
	}

	const endpoint = "/refund/v1/refund"
	body, status, err := c.doSigned(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return gateway.RefundResult{}, err
	}
	if status >= 400 {
		// 曖昧な失敗はリトライせず報告のみ
		return gateway.RefundResult{}, &gateway.GatewayUnavailableError{
			Gateway: c.Name(), Err: fmt.Errorf("refund returned %d: %s", status, string(body)),
		}
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			RefundID string `json:"refundId"`
			State    string `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return gateway.RefundResult{}, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
	}

	c.logger.Info("phonepe refund created", zap.String("merchant_reference", merchantReference))
	return gateway.RefundResult{RefundID: resp.Data.RefundID, Status: resp.Data.State}, nil
}

// doSigned は認証＋X-VERIFY付きでAPIを呼ぶ。401は一度だけトークンを
// 取り直して再送し、それでもだめなら認証エラーとして返す。
func (c *Client) doSigned(ctx context.Context, method string, endpoint string, payload map[string]interface{}) ([]byte, int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.Authenticate(ctx)
		if err != nil {
			return nil, 0, err
		}

		var reqBody io.Reader
		var verify string
		if payload != nil {
			raw, err := json.Marshal(payload)
			if err != nil {
				return nil, 0, &gateway.IntentCreationError{Gateway: c.Name(), Err: err}
			}
			b64 := base64.StdEncoding.EncodeToString(raw)
			verify = c.checksum(b64, endpoint)
			envelope, _ := json.Marshal(map[string]string{"request": b64})
			reqBody = bytes.NewReader(envelope)
		} else {
			verify = c.checksum("", endpoint)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, reqBody)
		if err != nil {
			return nil, 0, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-VERIFY", verify)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// タイムアウト・接続断はリトライ可能エラー
			return nil, 0, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, 0, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.invalidateToken()
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, 0, &gateway.AuthenticationError{
				Gateway: c.Name(), Err: errors.New("unauthorized after token refresh"),
			}
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, &gateway.AuthenticationError{Gateway: c.Name(), Err: errors.New("unreachable")}
}
