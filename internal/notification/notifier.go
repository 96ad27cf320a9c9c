package notification

import (
	"context"
	"time"

	"app/internal/domain/model"

	"go.uber.org/zap"
)

// 発火して忘れる前提。送信失敗しても決済側の状態遷移は巻き戻さない。
type Notifier interface {
	PaymentCompleted(ctx context.Context, order model.Order) error
	PaymentFailed(ctx context.Context, order model.Order) error
}

// Event は通知トピックへ流すペイロード。
type Event struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	PaymentStatus string    `json:"payment_status"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)

func newEvent(eventType string, order model.Order) Event {
	return Event{
		Type:          eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentStatus: string(order.PaymentStatus),
		Amount:        order.Amount,
		Currency:      order.Currency,
		OccurredAt:    time.Now(),
	}
}

// LogNotifier はブローカー未設定のときのフォールバック。ログに出すだけ。
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) PaymentCompleted(ctx context.Context, order model.Order) error {
	n.logger.Info("notification: payment completed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID))
	return nil
}

func (n *LogNotifier) PaymentFailed(ctx context.Context, order model.Order) error {
	n.logger.Info("notification: payment failed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID))
	return nil
}
