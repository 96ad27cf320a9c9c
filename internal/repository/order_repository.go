package repository

import (
	"context"
	"errors"
	"time"

	"app/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

type AdminOrderListFilter struct {
	Page          int
	Limit         int
	PaymentStatus string
	Fulfillment   string
	UserID        string
	From          *time.Time
	To            *time.Time
}

type OrderRepository interface {
	Create(ctx context.Context, order model.Order) error
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	ListByUserID(ctx context.Context, userID string, page int, limit int) ([]model.Order, int64, error)

	// intent確定時に有効参照と決済状態をまとめて更新する
	SetActiveReference(ctx context.Context, orderID string, merchantReference string, status model.PaymentStatus) error

	// 決済の終端結果を注文へ反映（fulfillmentは呼び出し側の判断で）
	UpdatePaymentResult(ctx context.Context, orderID string, status model.PaymentStatus, gatewayTxID string) error
	UpdateFulfillmentStatus(ctx context.Context, orderID string, status model.FulfillmentStatus) error

	// COMPLETEDのときだけREFUNDEDへ進める（条件付きUPDATE）
	MarkRefundedIfCompleted(ctx context.Context, orderID string) (bool, error)

	// 管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
