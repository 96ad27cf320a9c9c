package usecase

import (
	"context"
	"errors"
	"net/http"

	"app/internal/domain/model"
	"app/internal/gateway"
	repo "app/internal/repository"

	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	tx      repo.TransactionManager
	clients map[string]gateway.Client
	logger  *zap.Logger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, clients map[string]gateway.Client, logger *zap.Logger) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, clients: clients, logger: logger}
}

type AdminListOrdersInput struct {
	Page          int
	Limit         int
	PaymentStatus string
	Fulfillment   string
}

func (u *AdminOrderUsecase) ListOrders(ctx context.Context, in AdminListOrdersInput) ([]OrderOutput, int64, error) {
	if in.Page < 0 {
		return nil, 0, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 0 {
		return nil, 0, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	var outs []OrderOutput
	var total int64

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, t, err := r.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{
			Page:          in.Page,
			Limit:         in.Limit,
			PaymentStatus: in.PaymentStatus,
			Fulfillment:   in.Fulfillment,
		})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		total = t
		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			outs = append(outs, toOrderOutput(o))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return outs, total, nil
}

// fulfillmentの進行順
var fulfillmentRank = map[model.FulfillmentStatus]int{
	model.FulfillmentStatusPending:        0,
	model.FulfillmentStatusConfirmed:      1,
	model.FulfillmentStatusPreparing:      2,
	model.FulfillmentStatusOutForDelivery: 3,
	model.FulfillmentStatusDelivered:      4,
}

// AdvanceFulfillment は配送状態を進める。支払い確認前（COD以外で
// COMPLETED未満）はPENDINGから動かせない。
func (u *AdminOrderUsecase) AdvanceFulfillment(ctx context.Context, orderID string, target model.FulfillmentStatus) error {
	rank, valid := fulfillmentRank[target]
	if !valid && target != model.FulfillmentStatusCancelled {
		return NewHTTPError(http.StatusBadRequest, "invalid fulfillment_status")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if target == model.FulfillmentStatusCancelled {
			if o.FulfillmentStatus == model.FulfillmentStatusDelivered {
				return NewHTTPError(http.StatusConflict, "already delivered")
			}
		} else {
			current := fulfillmentRank[o.FulfillmentStatus]
			if rank <= current {
				return NewHTTPError(http.StatusConflict, "cannot move backward")
			}
			paid := o.PaymentStatus == model.PaymentStatusCompleted ||
				o.PaymentMethod == model.PaymentMethodCOD
			if !paid {
				return NewHTTPError(http.StatusConflict, "payment not completed")
			}
		}

		if err := r.Orders().UpdateFulfillmentStatus(ctx, orderID, target); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.History().Append(ctx, model.StatusHistory{
			OrderID: orderID,
			Status:  string(target),
			Source:  string(SourceSystem),
			Note:    "Fulfillment updated by admin",
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
}

// Refund はCOMPLETED注文の返金。ゲートウェイ呼び出しはトランザクションの
// 外で行い、成功してからREFUNDEDへ条件付きで進める。
func (u *AdminOrderUsecase) Refund(ctx context.Context, orderID string) error {
	var order model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		order = o
		return nil
	})
	if err != nil {
		return err
	}

	if order.PaymentStatus != model.PaymentStatusCompleted {
		return NewHTTPError(http.StatusConflict, "order not refundable")
	}
	client, ok := u.clients[order.PaymentMethod]
	if !ok {
		return NewHTTPError(http.StatusBadRequest, "no gateway for payment method")
	}
	if order.ActiveMerchantReference == "" {
		return NewHTTPError(http.StatusConflict, "no payment reference on order")
	}

	refund, err := client.Refund(ctx, order.ActiveMerchantReference, order.Amount)
	if err != nil {
		u.logger.Warn("refund failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		return mapGatewayError(err)
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ok, err := r.Orders().MarkRefundedIfCompleted(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			// 並行で状態が変わっていた。返金自体は発行済みなのでログに残す。
			u.logger.Warn("refund issued but order state changed",
				zap.String("order_id", orderID),
				zap.String("refund_id", refund.RefundID))
			return NewHTTPError(http.StatusConflict, "order state changed")
		}
		if err := r.History().Append(ctx, model.StatusHistory{
			OrderID: orderID,
			Status:  string(model.PaymentStatusRefunded),
			Source:  string(SourceSystem),
			Note:    "Refund issued (" + refund.RefundID + ")",
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
}
