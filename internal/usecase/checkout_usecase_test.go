package usecase_test

import (
	"context"
	"errors"
	"testing"

	"app/internal/domain/model"
	"app/internal/gateway"
	"app/internal/logger"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
)

func newCheckout(store *memStore, gw *scriptedGateway) *usecase.CheckoutUsecase {
	clients := map[string]gateway.Client{}
	if gw != nil {
		clients[gw.name] = gw
	}
	return usecase.NewCheckoutUsecase(store, clients, logger.NewTest())
}

func TestPlaceOrder_Validation(t *testing.T) {
	uc := newCheckout(newMemStore(), nil)
	ctx := context.Background()

	_, err := uc.PlaceOrder(ctx, usecase.PlaceOrderInput{UserID: "", Amount: 100, PaymentMethod: model.PaymentMethodCOD})
	assertHTTPStatus(t, err, 401)

	_, err = uc.PlaceOrder(ctx, usecase.PlaceOrderInput{UserID: "u1", Amount: 0, PaymentMethod: model.PaymentMethodCOD})
	assertErrContains(t, err, "invalid amount")

	_, err = uc.PlaceOrder(ctx, usecase.PlaceOrderInput{UserID: "u1", Amount: 100, PaymentMethod: "bitcoin"})
	assertErrContains(t, err, "invalid payment_method")
}

// 代引きは決済ゲートを通らず即CONFIRMED
func TestPlaceOrder_CODBypassesPaymentGate(t *testing.T) {
	store := newMemStore()
	uc := newCheckout(store, nil)

	out, err := uc.PlaceOrder(context.Background(), usecase.PlaceOrderInput{
		UserID:        "u1",
		Amount:        25000,
		PaymentMethod: model.PaymentMethodCOD,
	})

	assert.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusPending), out.PaymentStatus)
	assert.Equal(t, string(model.FulfillmentStatusConfirmed), out.FulfillmentStatus)
	assert.Equal(t, "INR", out.Currency)

	hs, _ := store.History().ListByOrderID(context.Background(), out.ID)
	assert.Len(t, hs, 1)
	assert.Equal(t, "Order placed", hs[0].Note)
}

func TestPlaceOrder_OnlinePaymentStartsInitiated(t *testing.T) {
	store := newMemStore()
	uc := newCheckout(store, &scriptedGateway{name: model.PaymentMethodPhonePe})

	out, err := uc.PlaceOrder(context.Background(), usecase.PlaceOrderInput{
		UserID:        "u1",
		Amount:        25000,
		PaymentMethod: model.PaymentMethodPhonePe,
	})

	assert.NoError(t, err)
	assert.Equal(t, string(model.PaymentStatusInitiated), out.PaymentStatus)
	assert.Equal(t, string(model.FulfillmentStatusPending), out.FulfillmentStatus)
}

func TestCreateIntent_Success(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	gw := &scriptedGateway{
		name:   model.PaymentMethodPhonePe,
		intent: gateway.Intent{IntentID: "TXN1", RedirectURL: "https://pay.example/redirect"},
	}
	uc := newCheckout(store, gw)

	placed, err := uc.PlaceOrder(ctx, usecase.PlaceOrderInput{
		UserID: "u1", Amount: 25000, PaymentMethod: model.PaymentMethodPhonePe,
	})
	assert.NoError(t, err)

	out, err := uc.CreateIntent(ctx, usecase.CreateIntentInput{OrderID: placed.ID, Gateway: model.PaymentMethodPhonePe})
	assert.NoError(t, err)
	assert.NotEmpty(t, out.MerchantReference)
	assert.Equal(t, "TXN1", out.IntentID)
	assert.Equal(t, "https://pay.example/redirect", out.RedirectURL)

	// 試行はPENDING、注文の有効参照が差し替わる
	att := store.attempts[out.MerchantReference]
	assert.Equal(t, model.PaymentStatusPending, att.Status)
	assert.Equal(t, placed.ID, att.OrderID)
	assert.Equal(t, out.MerchantReference, store.orders[placed.ID].ActiveMerchantReference)
	assert.Equal(t, model.PaymentStatusPending, store.orders[placed.ID].PaymentStatus)
}

// リトライのたびに新しいmerchant_referenceが発番され、古い参照は残る
func TestCreateIntent_RetryIssuesFreshReference(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	gw := &scriptedGateway{
		name:   model.PaymentMethodPhonePe,
		intent: gateway.Intent{IntentID: "TXN1"},
	}
	uc := newCheckout(store, gw)

	placed, _ := uc.PlaceOrder(ctx, usecase.PlaceOrderInput{
		UserID: "u1", Amount: 25000, PaymentMethod: model.PaymentMethodPhonePe,
	})

	out1, err := uc.CreateIntent(ctx, usecase.CreateIntentInput{OrderID: placed.ID, Gateway: model.PaymentMethodPhonePe})
	assert.NoError(t, err)

	// 1回目の試行をFAILEDに確定させてからリトライ
	rec, _ := newReconcile(store)
	_, err = rec.Reconcile(ctx, out1.MerchantReference, gateway.StatusResult{Status: gateway.StatusFailed}, usecase.SourceWebhook)
	assert.NoError(t, err)

	out2, err := uc.CreateIntent(ctx, usecase.CreateIntentInput{OrderID: placed.ID, Gateway: model.PaymentMethodPhonePe})
	assert.NoError(t, err)
	assert.NotEqual(t, out1.MerchantReference, out2.MerchantReference)

	assert.Equal(t, out2.MerchantReference, store.orders[placed.ID].ActiveMerchantReference)
	// 古い試行の行はFAILEDのまま残る
	assert.Equal(t, model.PaymentStatusFailed, store.attempts[out1.MerchantReference].Status)
}

func TestCreateIntent_RejectsCODAndPaidOrders(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	gw := &scriptedGateway{name: model.PaymentMethodPhonePe, intent: gateway.Intent{IntentID: "TXN1"}}
	uc := newCheckout(store, gw)

	cod, _ := uc.PlaceOrder(ctx, usecase.PlaceOrderInput{
		UserID: "u1", Amount: 100, PaymentMethod: model.PaymentMethodCOD,
	})
	_, err := uc.CreateIntent(ctx, usecase.CreateIntentInput{OrderID: cod.ID, Gateway: model.PaymentMethodPhonePe})
	assertHTTPStatus(t, err, 400)

	paid := model.Order{ID: "ord-paid", UserID: "u1", PaymentMethod: model.PaymentMethodPhonePe,
		PaymentStatus: model.PaymentStatusCompleted, Amount: 100, Currency: "INR"}
	store.orders[paid.ID] = paid
	_, err = uc.CreateIntent(ctx, usecase.CreateIntentInput{OrderID: paid.ID, Gateway: model.PaymentMethodPhonePe})
	assertHTTPStatus(t, err, 409)
}

func TestCreateIntent_GatewayErrorMapping(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"rejected", &gateway.IntentCreationError{Gateway: "phonepe", Err: errors.New("bad amount")}, 400},
		{"unavailable", &gateway.GatewayUnavailableError{Gateway: "phonepe", Err: errors.New("timeout")}, 502},
		{"auth", &gateway.AuthenticationError{Gateway: "phonepe", Err: errors.New("denied")}, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			gw := &scriptedGateway{name: model.PaymentMethodPhonePe, intentErr: tc.err}
			uc := newCheckout(store, gw)

			placed, _ := uc.PlaceOrder(ctx, usecase.PlaceOrderInput{
				UserID: "u1", Amount: 100, PaymentMethod: model.PaymentMethodPhonePe,
			})
			_, err := uc.CreateIntent(ctx, usecase.CreateIntentInput{OrderID: placed.ID, Gateway: model.PaymentMethodPhonePe})
			assertHTTPStatus(t, err, tc.wantStatus)
		})
	}
}

func TestCreateIntent_UnknownOrder(t *testing.T) {
	uc := newCheckout(newMemStore(), &scriptedGateway{name: model.PaymentMethodPhonePe})
	_, err := uc.CreateIntent(context.Background(), usecase.CreateIntentInput{OrderID: "nope", Gateway: model.PaymentMethodPhonePe})
	assertHTTPStatus(t, err, 404)
}
