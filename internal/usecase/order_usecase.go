package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

// 顧客向けの注文照会
type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type HistoryEntryOutput struct {
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

type OrderDetailOutput struct {
	OrderOutput
	GatewayTransactionID string               `json:"gateway_transaction_id,omitempty"`
	History              []HistoryEntryOutput `json:"status_history"`
}

func (u *OrderUsecase) GetOrder(ctx context.Context, userID string, orderID string) (OrderDetailOutput, error) {
	if userID == "" {
		return OrderDetailOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID == "" {
		return OrderDetailOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderDetailOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		history, err := r.History().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = OrderDetailOutput{
			OrderOutput:          toOrderOutput(o),
			GatewayTransactionID: o.GatewayTransactionID,
			History:              toHistoryOutput(history),
		}
		return nil
	})
	if err != nil {
		return OrderDetailOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID string) ([]OrderOutput, error) {
	if userID == "" {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			outs = append(outs, toOrderOutput(o))
		}
		return nil
	})
	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func toHistoryOutput(items []model.StatusHistory) []HistoryEntryOutput {
	outs := make([]HistoryEntryOutput, 0, len(items))
	for _, h := range items {
		outs = append(outs, HistoryEntryOutput{
			Status:    h.Status,
			Source:    h.Source,
			Note:      h.Note,
			Timestamp: h.CreatedAt,
		})
	}
	return outs
}
