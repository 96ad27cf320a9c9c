package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"app/internal/gateway"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.razorpay.com"
	requestTimeout = 30 * time.Second
)

type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string

	// テスト用に差し替え可能
	BaseURL string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("razorpay credentials not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}, nil
}

func (c *Client) Name() string { return "razorpay" }

// RazorpayはBasic認証の固定キーなので期限切れはない。key_idを返す
// （チェックアウトUIがそのまま公開キーとして使う）。
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	return c.cfg.KeyID, nil
}

type orderEntity struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"` // created / attempted / paid
}

// CreateIntent はRazorpay注文を作る。Razorpayはホスト型リダイレクトではなく
// 埋め込みチェックアウトなのでRedirectURLは空。UI側はIntentIDと公開キーで
// チェックアウトを開く（元システムと同じ流儀）。
func (c *Client) CreateIntent(ctx context.Context, merchantReference string, amount int64, currency string, customer gateway.CustomerContact) (gateway.Intent, error) {
	payload := map[string]interface{}{
		"amount":          amount,
		"currency":        currency,
		"receipt":         merchantReference,
		"payment_capture": 1,
		"notes": map[string]string{
			"merchant_reference": merchantReference,
		},
	}

	body, status, err := c.do(ctx, http.MethodPost, "/v1/orders", payload)
	if err != nil {
		return gateway.Intent{}, err
	}
	if status >= 500 {
		return gateway.Intent{}, &gateway.GatewayUnavailableError{
			Gateway: c.Name(), Err: fmt.Errorf("orders returned %d", status),
		}
	}
	if status >= 400 {
		return gateway.Intent{}, &gateway.IntentCreationError{
			Gateway: c.Name(), Err: fmt.Errorf("orders returned %d: %s", status, string(body)),
		}
	}

	var o orderEntity
	if err := json.Unmarshal(body, &o); err != nil {
		return gateway.Intent{}, &gateway.IntentCreationError{Gateway: c.Name(), Err: err}
	}
	if o.ID == "" {
		return gateway.Intent{}, &gateway.IntentCreationError{
			Gateway: c.Name(), Err: errors.New("order id missing in response"),
		}
	}

	c.logger.Info("razorpay order created",
		zap.String("merchant_reference", merchantReference),
		zap.String("razorpay_order_id", o.ID))
	return gateway.Intent{IntentID: o.ID}, nil
}

type paymentEntity struct {
	ID      string            `json:"id"`
	OrderID string            `json:"order_id"`
	Status  string            `json:"status"` // created / authorized / captured / refunded / failed
	Notes   map[string]string `json:"notes"`
}

type collection struct {
	Count int               `json:"count"`
	Items []json.RawMessage `json:"items"`
}

// QueryStatus はreceipt=merchant_referenceで注文を引き、支払い一覧から
// 共通ステータスへ正規化する。
func (c *Client) QueryStatus(ctx context.Context, merchantReference string) (gateway.StatusResult, error) {
	path := "/v1/orders?receipt=" + url.QueryEscape(merchantReference)
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return gateway.StatusResult{}, err
	}
	if status >= 400 {
		return gateway.StatusResult{}, &gateway.GatewayUnavailableError{
			Gateway: c.Name(), Err: fmt.Errorf("order lookup returned %d", status),
		}
	}

	var orders collection
	if err := json.Unmarshal(body, &orders); err != nil {
		return gateway.StatusResult{}, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
	}
	if len(orders.Items) == 0 {
		// ゲートウェイ側にまだ記録がない
		return gateway.StatusResult{Status: gateway.StatusUnknown}, nil
	}

	var o orderEntity
	if err := json.Unmarshal(orders.Items[0], &o); err != nil {
		return gateway.StatusResult{}, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
	}

	if o.Status == "created" {
		return gateway.StatusResult{Status: gateway.StatusPending}, nil
	}

	// attempted/paidは支払い明細で確定させる
	body, status, err = c.do(ctx, http.MethodGet, "/v1/orders/"+o.ID+"/payments", nil)
	if err != nil {
		return gateway.StatusResult{}, err
	}
	if status >= 400 {
		return gateway.StatusResult{}, &gateway.GatewayUnavailableError{
			Gateway: c.Name(), Err: fmt.Errorf("payments lookup returned %d", status),
		}
	}

	var payments collection
	if err := json.Unmarshal(body, &payments); err != nil {
		return gateway.StatusResult{}, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
	}

	sawFailed := false
	var failedID string
	for _, raw := range payments.Items {
		var p paymentEntity
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		if p.Status == "captured" || p.Status == "refunded" {
			return gateway.StatusResult{
				Status:               gateway.StatusCompleted,
				GatewayTransactionID: p.ID,
			}, nil
		}
		if p.Status == "failed" {
			sawFailed = true
			failedID = p.ID
		}
	}

	if o.Status == "paid" {
		// 注文はpaidなのに明細が追いついていない
		return gateway.StatusResult{Status: gateway.StatusCompleted}, nil
	}
	if sawFailed {
		return gateway.StatusResult{Status: gateway.StatusFailed, GatewayTransactionID: failedID}, nil
	}
	return gateway.StatusResult{Status: gateway.StatusPending}, nil
}

// X-Razorpay-Signature: webhook秘密鍵によるボディ全体のHMAC-SHA256
func (c *Client) VerifyWebhookSignature(headers http.Header, rawBody []byte) bool {
	sig := headers.Get("X-Razorpay-Signature")
	if sig == "" || c.cfg.WebhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// チェックアウト戻りの署名検証: HMAC-SHA256("order_id|payment_id", key_secret)
func (c *Client) VerifyCheckoutSignature(razorpayOrderID, razorpayPaymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.cfg.KeySecret))
	mac.Write([]byte(razorpayOrderID + "|" + razorpayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Order struct {
			Entity orderEntity `json:"entity"`
		} `json:"order"`
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (c *Client) ParseWebhook(rawBody []byte) (gateway.WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return gateway.WebhookEvent{}, fmt.Errorf("invalid webhook body: %w", err)
	}

	// merchant_referenceは注文のreceipt、なければ支払いのnotesから拾う
	ref := env.Payload.Order.Entity.Receipt
	if ref == "" {
		ref = env.Payload.Payment.Entity.Notes["merchant_reference"]
	}
	if ref == "" {
		return gateway.WebhookEvent{}, errors.New("webhook missing merchant reference")
	}

	ev := gateway.WebhookEvent{
		MerchantReference:    ref,
		GatewayTransactionID: env.Payload.Payment.Entity.ID,
	}
	switch env.Event {
	case "order.paid", "payment.captured":
		ev.Status = gateway.StatusCompleted
	case "payment.failed":
		ev.Status = gateway.StatusFailed
	default:
		ev.Status = gateway.StatusPending
	}
	return ev, nil
}

func (c *Client) Refund(ctx context.Context, merchantReference string, amount int64) (gateway.RefundResult, error) {
	// まずcaptured済みの支払いを特定する
	st, err := c.QueryStatus(ctx, merchantReference)
	if err != nil {
		return gateway.RefundResult{}, err
	}
	if st.Status != gateway.StatusCompleted || st.GatewayTransactionID == "" {
		return gateway.RefundResult{}, &gateway.GatewayUnavailableError{
			Gateway: c.Name(), Err: errors.New("no captured payment to refund"),
		}
	}

	payload := map[string]interface{}{"amount": amount}
	body, status, err := c.do(ctx, http.MethodPost, "/v1/payments/"+st.GatewayTransactionID+"/refund", payload)
	if err != nil {
		return gateway.RefundResult{}, err
	}
	if status >= 400 {
		return gateway.RefundResult{}, &gateway.GatewayUnavailableError{
			Gateway: c.Name(), Err: fmt.Errorf("refund returned %d: %s", status, string(body)),
		}
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return gateway.RefundResult{}, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
	}

	c.logger.Info("razorpay refund created",
		zap.String("merchant_reference", merchantReference),
		zap.String("refund_id", resp.ID))
	return gateway.RefundResult{RefundID: resp.ID, Status: resp.Status}, nil
}

func (c *Client) do(ctx context.Context, method string, path string, payload map[string]interface{}) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, &gateway.IntentCreationError{Gateway: c.Name(), Err: err}
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, 0, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &gateway.GatewayUnavailableError{Gateway: c.Name(), Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, 0, &gateway.AuthenticationError{
			Gateway: c.Name(), Err: errors.New("key rejected"),
		}
	}

	return body, resp.StatusCode, nil
}
