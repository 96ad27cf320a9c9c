package repository

import (
	"context"
	"errors"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"gorm.io/gorm"
)

type PaymentAttemptGormRepository struct {
	db *gorm.DB
}

func NewPaymentAttemptGormRepository(db *gorm.DB) *PaymentAttemptGormRepository {
	return &PaymentAttemptGormRepository{db: db}
}

func (r *PaymentAttemptGormRepository) Create(ctx context.Context, attempt model.PaymentAttempt) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return 0, err
	}
	return attempt.ID, nil
}

func (r *PaymentAttemptGormRepository) FindByReference(ctx context.Context, merchantReference string) (model.PaymentAttempt, error) {
	var a model.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("merchant_reference = ?", merchantReference).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PaymentAttempt{}, repo.ErrNotFound
	}
	if err != nil {
		return model.PaymentAttempt{}, err
	}
	return a, nil
}

func (r *PaymentAttemptGormRepository) MarkPending(ctx context.Context, merchantReference string, gatewayTxID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.PaymentAttempt{}).
		Where("merchant_reference = ? AND status = ?", merchantReference, model.PaymentStatusInitiated).
		Updates(map[string]interface{}{
			"status":                 model.PaymentStatusPending,
			"gateway_transaction_id": gatewayTxID,
			"updated_at":             time.Now(),
		})

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 終端へ進めるのは未終端のときだけ。RowsAffected==0は競り負け。
func (r *PaymentAttemptGormRepository) FinalizeIfOpen(ctx context.Context, merchantReference string, status model.PaymentStatus, gatewayTxID string) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if gatewayTxID != "" {
		updates["gateway_transaction_id"] = gatewayTxID
	}

	res := r.db.WithContext(ctx).Model(&model.PaymentAttempt{}).
		Where("merchant_reference = ? AND status IN ?",
			merchantReference,
			[]model.PaymentStatus{model.PaymentStatusInitiated, model.PaymentStatusPending}).
		Updates(updates)

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

func (r *PaymentAttemptGormRepository) IncrementPollCount(ctx context.Context, merchantReference string) error {
	res := r.db.WithContext(ctx).Model(&model.PaymentAttempt{}).
		Where("merchant_reference = ?", merchantReference).
		Update("poll_count", gorm.Expr("poll_count + 1"))

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
