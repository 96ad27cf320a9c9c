package repository

import (
	"context"

	"app/internal/domain/model"
)

type StatusHistoryRepository interface {
	// 追記のみ。既存行の更新はしない。
	Append(ctx context.Context, entry model.StatusHistory) error
	ListByOrderID(ctx context.Context, orderID string) ([]model.StatusHistory, error)
}
