package usecase_test

import (
	"context"
	"testing"
	"time"

	"app/internal/domain/model"
	"app/internal/gateway"
	"app/internal/logger"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
)

func newVerify(store *memStore, gw *scriptedGateway, maxAttempts int) *usecase.VerifyUsecase {
	rec, _ := newReconcile(store)
	return usecase.NewVerifyUsecase(
		map[string]gateway.Client{gw.name: gw},
		rec, maxAttempts, time.Millisecond, logger.NewTest())
}

func TestVerifyPayment_CompletedOnFirstPoll(t *testing.T) {
	store := newMemStore()
	seedOrderWithAttempt(store, "ord-1", "ORDER_ord-1_100", model.PaymentMethodPhonePe)
	gw := &scriptedGateway{name: model.PaymentMethodPhonePe, results: []scriptedResult{
		{status: gateway.StatusResult{Status: gateway.StatusCompleted, GatewayTransactionID: "T1"}},
	}}
	uc := newVerify(store, gw, 5)

	res, err := uc.VerifyPayment(context.Background(), model.PaymentMethodPhonePe, "ORDER_ord-1_100")

	assert.NoError(t, err)
	assert.Equal(t, usecase.VerifyCompleted, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, gw.queryCalls())
	assert.Equal(t, model.PaymentStatusCompleted, store.orders["ord-1"].PaymentStatus)
}

// 途中で確定したらそこで打ち切る
func TestVerifyPayment_StopsEarlyOnTerminal(t *testing.T) {
	store := newMemStore()
	seedOrderWithAttempt(store, "ord-1", "ORDER_ord-1_100", model.PaymentMethodPhonePe)
	gw := &scriptedGateway{name: model.PaymentMethodPhonePe, results: []scriptedResult{
		{status: gateway.StatusResult{Status: gateway.StatusPending}},
		{status: gateway.StatusResult{Status: gateway.StatusPending}},
		{status: gateway.StatusResult{Status: gateway.StatusFailed}},
	}}
	uc := newVerify(store, gw, 5)

	res, err := uc.VerifyPayment(context.Background(), model.PaymentMethodPhonePe, "ORDER_ord-1_100")

	assert.NoError(t, err)
	assert.Equal(t, usecase.VerifyFailed, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, gw.queryCalls())
}

// ずっとPENDINGなら予算を使い切ってPENDINGで返す（FAILEDにはしない）
func TestVerifyPayment_ExhaustedBudgetIsPending(t *testing.T) {
	store := newMemStore()
	seedOrderWithAttempt(store, "ord-1", "ORDER_ord-1_100", model.PaymentMethodPhonePe)
	gw := &scriptedGateway{name: model.PaymentMethodPhonePe, results: []scriptedResult{
		{status: gateway.StatusResult{Status: gateway.StatusPending}},
	}}
	uc := newVerify(store, gw, 5)

	res, err := uc.VerifyPayment(context.Background(), model.PaymentMethodPhonePe, "ORDER_ord-1_100")

	assert.NoError(t, err)
	assert.Equal(t, usecase.VerifyPending, res.Outcome)
	assert.Equal(t, 5, res.Attempts)
	assert.Equal(t, 5, gw.queryCalls())
	// 注文は未確定のまま。あとからwebhookが解決できる。
	assert.Equal(t, model.PaymentStatusPending, store.orders["ord-1"].PaymentStatus)
	assert.Equal(t, 5, store.attempts["ORDER_ord-1_100"].PollCount)
}

// 問い合わせ自体が最後まで失敗し続けたらINCONCLUSIVE
func TestVerifyPayment_NetworkErrorsAreInconclusive(t *testing.T) {
	store := newMemStore()
	seedOrderWithAttempt(store, "ord-1", "ORDER_ord-1_100", model.PaymentMethodPhonePe)
	gw := &scriptedGateway{name: model.PaymentMethodPhonePe, results: []scriptedResult{
		{err: &gateway.GatewayUnavailableError{Gateway: "phonepe", Err: context.DeadlineExceeded}},
	}}
	uc := newVerify(store, gw, 3)

	res, err := uc.VerifyPayment(context.Background(), model.PaymentMethodPhonePe, "ORDER_ord-1_100")

	assert.NoError(t, err)
	assert.Equal(t, usecase.VerifyInconclusive, res.Outcome)
	// ネットワーク障害も同じ試行予算を消費する
	assert.Equal(t, 3, gw.queryCalls())
}

// 最後の問い合わせが成功していればINCONCLUSIVEではなくPENDING
func TestVerifyPayment_RecoveredErrorEndsPending(t *testing.T) {
	store := newMemStore()
	seedOrderWithAttempt(store, "ord-1", "ORDER_ord-1_100", model.PaymentMethodPhonePe)
	gw := &scriptedGateway{name: model.PaymentMethodPhonePe, results: []scriptedResult{
		{err: &gateway.GatewayUnavailableError{Gateway: "phonepe", Err: context.DeadlineExceeded}},
		{status: gateway.StatusResult{Status: gateway.StatusPending}},
	}}
	uc := newVerify(store, gw, 2)

	res, err := uc.VerifyPayment(context.Background(), model.PaymentMethodPhonePe, "ORDER_ord-1_100")

	assert.NoError(t, err)
	assert.Equal(t, usecase.VerifyPending, res.Outcome)
}

// webhookが先に確定していたら1回目のポーリングで確定結果が返る
func TestVerifyPayment_WebhookAlreadyFinalized(t *testing.T) {
	store := newMemStore()
	seedOrderWithAttempt(store, "ord-1", "ORDER_ord-1_100", model.PaymentMethodPhonePe)
	att := store.attempts["ORDER_ord-1_100"]
	att.Status = model.PaymentStatusCompleted
	store.attempts["ORDER_ord-1_100"] = att
	gw := &scriptedGateway{name: model.PaymentMethodPhonePe, results: []scriptedResult{
		{status: gateway.StatusResult{Status: gateway.StatusCompleted}},
	}}
	uc := newVerify(store, gw, 5)

	res, err := uc.VerifyPayment(context.Background(), model.PaymentMethodPhonePe, "ORDER_ord-1_100")

	assert.NoError(t, err)
	assert.Equal(t, usecase.VerifyCompleted, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
}

func TestVerifyPayment_ContextCancelled(t *testing.T) {
	store := newMemStore()
	seedOrderWithAttempt(store, "ord-1", "ORDER_ord-1_100", model.PaymentMethodPhonePe)
	gw := &scriptedGateway{name: model.PaymentMethodPhonePe, results: []scriptedResult{
		{status: gateway.StatusResult{Status: gateway.StatusPending}},
	}}
	rec, _ := newReconcile(store)
	uc := usecase.NewVerifyUsecase(
		map[string]gateway.Client{gw.name: gw},
		rec, 5, time.Minute, logger.NewTest())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := uc.VerifyPayment(ctx, model.PaymentMethodPhonePe, "ORDER_ord-1_100")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyPayment_UnknownGateway(t *testing.T) {
	store := newMemStore()
	uc := newVerify(store, &scriptedGateway{name: model.PaymentMethodPhonePe}, 5)

	_, err := uc.VerifyPayment(context.Background(), "paypal", "ORDER_x_1")
	assertHTTPStatus(t, err, 400)
	assertErrContains(t, err, "unknown gateway")
}
