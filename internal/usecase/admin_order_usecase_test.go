package usecase_test

import (
	"context"
	"testing"

	"app/internal/domain/model"
	"app/internal/gateway"
	"app/internal/logger"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
)

func newAdmin(store *memStore, gw *scriptedGateway) *usecase.AdminOrderUsecase {
	clients := map[string]gateway.Client{}
	if gw != nil {
		clients[gw.name] = gw
	}
	return usecase.NewAdminOrderUsecase(store, clients, logger.NewTest())
}

func seedPaidOrder(store *memStore, orderID string) {
	store.orders[orderID] = model.Order{
		ID:                      orderID,
		UserID:                  "u1",
		PaymentMethod:           model.PaymentMethodPhonePe,
		PaymentStatus:           model.PaymentStatusCompleted,
		FulfillmentStatus:       model.FulfillmentStatusConfirmed,
		ActiveMerchantReference: "ORDER_" + orderID + "_100",
		Amount:                  50000,
		Currency:                "INR",
	}
}

func TestAdvanceFulfillment_Forward(t *testing.T) {
	store := newMemStore()
	seedPaidOrder(store, "ord-1")
	uc := newAdmin(store, nil)

	err := uc.AdvanceFulfillment(context.Background(), "ord-1", model.FulfillmentStatusPreparing)
	assert.NoError(t, err)
	assert.Equal(t, model.FulfillmentStatusPreparing, store.orders["ord-1"].FulfillmentStatus)

	hs, _ := store.History().ListByOrderID(context.Background(), "ord-1")
	assert.Len(t, hs, 1)
}

func TestAdvanceFulfillment_NoBackward(t *testing.T) {
	store := newMemStore()
	seedPaidOrder(store, "ord-1")
	o := store.orders["ord-1"]
	o.FulfillmentStatus = model.FulfillmentStatusOutForDelivery
	store.orders["ord-1"] = o
	uc := newAdmin(store, nil)

	err := uc.AdvanceFulfillment(context.Background(), "ord-1", model.FulfillmentStatusPreparing)
	assertHTTPStatus(t, err, 409)
}

// 支払い未確認の注文は進められない（CODは例外）
func TestAdvanceFulfillment_PaymentGate(t *testing.T) {
	store := newMemStore()
	seedOrderWithAttempt(store, "ord-1", "ORDER_ord-1_100", model.PaymentMethodPhonePe)
	uc := newAdmin(store, nil)

	err := uc.AdvanceFulfillment(context.Background(), "ord-1", model.FulfillmentStatusConfirmed)
	assertHTTPStatus(t, err, 409)
	assertErrContains(t, err, "payment not completed")

	cod := store.orders["ord-1"]
	cod.ID = "ord-2"
	cod.PaymentMethod = model.PaymentMethodCOD
	store.orders["ord-2"] = cod
	err = uc.AdvanceFulfillment(context.Background(), "ord-2", model.FulfillmentStatusConfirmed)
	assert.NoError(t, err)
}

func TestAdvanceFulfillment_CancelRules(t *testing.T) {
	store := newMemStore()
	seedPaidOrder(store, "ord-1")
	uc := newAdmin(store, nil)

	err := uc.AdvanceFulfillment(context.Background(), "ord-1", model.FulfillmentStatusCancelled)
	assert.NoError(t, err)

	seedPaidOrder(store, "ord-2")
	o := store.orders["ord-2"]
	o.FulfillmentStatus = model.FulfillmentStatusDelivered
	store.orders["ord-2"] = o
	err = uc.AdvanceFulfillment(context.Background(), "ord-2", model.FulfillmentStatusCancelled)
	assertHTTPStatus(t, err, 409)
}

func TestRefund_CompletedOrder(t *testing.T) {
	store := newMemStore()
	seedPaidOrder(store, "ord-1")
	gw := &scriptedGateway{name: model.PaymentMethodPhonePe}
	uc := newAdmin(store, gw)

	err := uc.Refund(context.Background(), "ord-1")
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, store.orders["ord-1"].PaymentStatus)

	hs, _ := store.History().ListByOrderID(context.Background(), "ord-1")
	assert.Len(t, hs, 1)
	assert.Contains(t, hs[0].Note, "rf_test")
}

func TestRefund_RejectsUnpaidOrder(t *testing.T) {
	store := newMemStore()
	seedOrderWithAttempt(store, "ord-1", "ORDER_ord-1_100", model.PaymentMethodPhonePe)
	uc := newAdmin(store, &scriptedGateway{name: model.PaymentMethodPhonePe})

	err := uc.Refund(context.Background(), "ord-1")
	assertHTTPStatus(t, err, 409)
	assert.Equal(t, model.PaymentStatusPending, store.orders["ord-1"].PaymentStatus)
}

func TestRefund_UnknownOrder(t *testing.T) {
	uc := newAdmin(newMemStore(), nil)
	err := uc.Refund(context.Background(), "nope")
	assertHTTPStatus(t, err, 404)
}

func TestListOrders_Filters(t *testing.T) {
	store := newMemStore()
	seedPaidOrder(store, "ord-1")
	seedOrderWithAttempt(store, "ord-2", "ORDER_ord-2_100", model.PaymentMethodPhonePe)
	uc := newAdmin(store, nil)

	out, total, err := uc.ListOrders(context.Background(), usecase.AdminListOrdersInput{
		PaymentStatus: string(model.PaymentStatusCompleted),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, out, 1)
	assert.Equal(t, "ord-1", out[0].ID)
}
