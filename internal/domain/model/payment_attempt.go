package model

import "time"

// PaymentAttempt は1回の決済試行。merchant_referenceは試行ごとに一意。
// 失敗後のリトライは新しい行を作る（古い参照の遅延通知が後勝ちしないように）。
type PaymentAttempt struct {
	ID                   int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	MerchantReference    string        `gorm:"type:varchar(128);not null;uniqueIndex" json:"merchant_reference"`
	OrderID              string        `gorm:"type:varchar(64);not null;index" json:"order_id"`
	Gateway              string        `gorm:"type:varchar(20);not null" json:"gateway"`
	Status               PaymentStatus `gorm:"type:varchar(20);not null" json:"status"`
	GatewayTransactionID string        `gorm:"type:varchar(128)" json:"gateway_transaction_id,omitempty"`

	// PENDING観測の回数（履歴には積まない）
	PollCount int `gorm:"not null;default:0" json:"poll_count"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
