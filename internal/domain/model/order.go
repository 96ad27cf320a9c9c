package model

import "time"

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "INITIATED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// 終端状態かどうか（COMPLETED/FAILEDからは遷移しない）
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

type FulfillmentStatus string

const (
	FulfillmentStatusPending        FulfillmentStatus = "PENDING"
	FulfillmentStatusConfirmed      FulfillmentStatus = "CONFIRMED"
	FulfillmentStatusPreparing      FulfillmentStatus = "PREPARING"
	FulfillmentStatusOutForDelivery FulfillmentStatus = "OUT_FOR_DELIVERY"
	FulfillmentStatusDelivered      FulfillmentStatus = "DELIVERED"
	FulfillmentStatusCancelled      FulfillmentStatus = "CANCELLED"
)

const (
	PaymentMethodCOD      = "cod"
	PaymentMethodPhonePe  = "phonepe"
	PaymentMethodRazorpay = "razorpay"
)

type Order struct {
	ID                string            `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID            string            `gorm:"type:varchar(64);not null;index" json:"user_id"`
	PaymentMethod     string            `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentStatus     PaymentStatus     `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	FulfillmentStatus FulfillmentStatus `gorm:"type:varchar(20);not null;index" json:"fulfillment_status"`

	// 現在有効な決済試行のmerchant_reference（リトライで差し替わる）
	ActiveMerchantReference string `gorm:"type:varchar(128);index" json:"-"`
	GatewayTransactionID    string `gorm:"type:varchar(128)" json:"gateway_transaction_id,omitempty"`

	// 金額は最小通貨単位（INRならpaise）。作成後は不変。
	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:varchar(8);not null" json:"currency"`

	// intent作成時にゲートウェイへ渡す連絡先
	CustomerPhone string `gorm:"type:varchar(20)" json:"customer_phone,omitempty"`
	CustomerEmail string `gorm:"type:varchar(255)" json:"customer_email,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
