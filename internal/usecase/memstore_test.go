package usecase_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"app/internal/domain/model"
	"app/internal/gateway"
	repo "app/internal/repository"
	"app/internal/usecase"
)

// =====================
// インメモリのストア実装（CASの意味論はGORM実装と揃えてある）
// =====================

type memStore struct {
	mu       sync.Mutex
	orders   map[string]model.Order
	attempts map[string]model.PaymentAttempt
	history  []model.StatusHistory
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[string]model.Order{},
		attempts: map[string]model.PaymentAttempt{},
	}
}

// WithinTxは全体を1本のロックで直列化する（SERIALIZABLE相当）
func (s *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

func (s *memStore) Orders() repo.OrderRepository            { return (*memOrders)(s) }
func (s *memStore) Attempts() repo.PaymentAttemptRepository { return (*memAttempts)(s) }
func (s *memStore) History() repo.StatusHistoryRepository   { return (*memHistory)(s) }

type memOrders memStore

func (s *memOrders) Create(ctx context.Context, order model.Order) error {
	s.orders[order.ID] = order
	return nil
}

func (s *memOrders) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (s *memOrders) ListByUserID(ctx context.Context, userID string, page int, limit int) ([]model.Order, int64, error) {
	var out []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memOrders) SetActiveReference(ctx context.Context, orderID string, merchantReference string, status model.PaymentStatus) error {
	o, ok := s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.ActiveMerchantReference = merchantReference
	o.PaymentStatus = status
	s.orders[orderID] = o
	return nil
}

func (s *memOrders) UpdatePaymentResult(ctx context.Context, orderID string, status model.PaymentStatus, gatewayTxID string) error {
	o, ok := s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.PaymentStatus = status
	if gatewayTxID != "" {
		o.GatewayTransactionID = gatewayTxID
	}
	s.orders[orderID] = o
	return nil
}

func (s *memOrders) UpdateFulfillmentStatus(ctx context.Context, orderID string, status model.FulfillmentStatus) error {
	o, ok := s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.FulfillmentStatus = status
	s.orders[orderID] = o
	return nil
}

func (s *memOrders) MarkRefundedIfCompleted(ctx context.Context, orderID string) (bool, error) {
	o, ok := s.orders[orderID]
	if !ok || o.PaymentStatus != model.PaymentStatusCompleted {
		return false, nil
	}
	o.PaymentStatus = model.PaymentStatusRefunded
	s.orders[orderID] = o
	return true, nil
}

func (s *memOrders) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	var out []model.Order
	for _, o := range s.orders {
		if f.PaymentStatus != "" && string(o.PaymentStatus) != f.PaymentStatus {
			continue
		}
		if f.Fulfillment != "" && string(o.FulfillmentStatus) != f.Fulfillment {
			continue
		}
		out = append(out, o)
	}
	return out, int64(len(out)), nil
}

type memAttempts memStore

func (s *memAttempts) Create(ctx context.Context, attempt model.PaymentAttempt) (int64, error) {
	attempt.ID = int64(len(s.attempts) + 1)
	s.attempts[attempt.MerchantReference] = attempt
	return attempt.ID, nil
}

func (s *memAttempts) FindByReference(ctx context.Context, merchantReference string) (model.PaymentAttempt, error) {
	a, ok := s.attempts[merchantReference]
	if !ok {
		return model.PaymentAttempt{}, repo.ErrNotFound
	}
	return a, nil
}

func (s *memAttempts) MarkPending(ctx context.Context, merchantReference string, gatewayTxID string) (bool, error) {
	a, ok := s.attempts[merchantReference]
	if !ok || a.Status != model.PaymentStatusInitiated {
		return false, nil
	}
	a.Status = model.PaymentStatusPending
	a.GatewayTransactionID = gatewayTxID
	s.attempts[merchantReference] = a
	return true, nil
}

func (s *memAttempts) FinalizeIfOpen(ctx context.Context, merchantReference string, status model.PaymentStatus, gatewayTxID string) (bool, error) {
	a, ok := s.attempts[merchantReference]
	if !ok {
		return false, nil
	}
	if a.Status != model.PaymentStatusInitiated && a.Status != model.PaymentStatusPending {
		return false, nil
	}
	a.Status = status
	if gatewayTxID != "" {
		a.GatewayTransactionID = gatewayTxID
	}
	s.attempts[merchantReference] = a
	return true, nil
}

func (s *memAttempts) IncrementPollCount(ctx context.Context, merchantReference string) error {
	a, ok := s.attempts[merchantReference]
	if !ok {
		return repo.ErrNotFound
	}
	a.PollCount++
	s.attempts[merchantReference] = a
	return nil
}

type memHistory memStore

func (s *memHistory) Append(ctx context.Context, entry model.StatusHistory) error {
	s.history = append(s.history, entry)
	return nil
}

func (s *memHistory) ListByOrderID(ctx context.Context, orderID string) ([]model.StatusHistory, error) {
	var out []model.StatusHistory
	for _, h := range s.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

// =====================
// 通知の回数を数えるNotifier
// =====================

type countingNotifier struct {
	mu        sync.Mutex
	completed int
	failed    int
}

func (n *countingNotifier) PaymentCompleted(ctx context.Context, order model.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
	return nil
}

func (n *countingNotifier) PaymentFailed(ctx context.Context, order model.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed++
	return nil
}

// =====================
// 応答をスクリプトできるゲートウェイ
// =====================

type scriptedGateway struct {
	mu      sync.Mutex
	name    string
	results []scriptedResult
	calls   int

	intent    gateway.Intent
	intentErr error
}

type scriptedResult struct {
	status gateway.StatusResult
	err    error
}

func (g *scriptedGateway) Name() string { return g.name }

func (g *scriptedGateway) Authenticate(ctx context.Context) (string, error) {
	return "test_key", nil
}

func (g *scriptedGateway) CreateIntent(ctx context.Context, merchantReference string, amount int64, currency string, customer gateway.CustomerContact) (gateway.Intent, error) {
	if g.intentErr != nil {
		return gateway.Intent{}, g.intentErr
	}
	return g.intent, nil
}

func (g *scriptedGateway) QueryStatus(ctx context.Context, merchantReference string) (gateway.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i >= len(g.results) {
		i = len(g.results) - 1
	}
	r := g.results[i]
	return r.status, r.err
}

func (g *scriptedGateway) VerifyWebhookSignature(headers http.Header, rawBody []byte) bool {
	return true
}

func (g *scriptedGateway) ParseWebhook(rawBody []byte) (gateway.WebhookEvent, error) {
	return gateway.WebhookEvent{}, nil
}

func (g *scriptedGateway) Refund(ctx context.Context, merchantReference string, amount int64) (gateway.RefundResult, error) {
	return gateway.RefundResult{RefundID: "rf_test", Status: "processed"}, nil
}

func (g *scriptedGateway) queryCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// =====================
// 共通ヘルパー
// =====================

func assertErrContains(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}
	msg := err.Error()
	if he, ok := usecase.AsHTTPError(err); ok {
		msg = he.Message
	}
	if !strings.Contains(msg, want) {
		t.Fatalf("expected error containing %q, got %q", want, msg)
	}
}

func assertHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	he, ok := usecase.AsHTTPError(err)
	if !ok {
		t.Fatalf("expected HTTPError with status %d, got %v", want, err)
	}
	if he.Status != want {
		t.Fatalf("expected status %d, got %d (%s)", want, he.Status, he.Message)
	}
}

func seedOrderWithAttempt(s *memStore, orderID string, ref string, method string) {
	s.orders[orderID] = model.Order{
		ID:                      orderID,
		UserID:                  "user-1",
		PaymentMethod:           method,
		PaymentStatus:           model.PaymentStatusPending,
		FulfillmentStatus:       model.FulfillmentStatusPending,
		ActiveMerchantReference: ref,
		Amount:                  50000,
		Currency:                "INR",
	}
	s.attempts[ref] = model.PaymentAttempt{
		ID:                1,
		MerchantReference: ref,
		OrderID:           orderID,
		Gateway:           method,
		Status:            model.PaymentStatusPending,
	}
}
