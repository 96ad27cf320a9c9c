package repository

import (
	"context"

	"app/internal/domain/model"

	"gorm.io/gorm"
)

type StatusHistoryGormRepository struct {
	db *gorm.DB
}

func NewStatusHistoryGormRepository(db *gorm.DB) *StatusHistoryGormRepository {
	return &StatusHistoryGormRepository{db: db}
}

func (r *StatusHistoryGormRepository) Append(ctx context.Context, entry model.StatusHistory) error {
	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *StatusHistoryGormRepository) ListByOrderID(ctx context.Context, orderID string) ([]model.StatusHistory, error) {
	var items []model.StatusHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return []model.StatusHistory{}, err
	}
	return items, nil
}
