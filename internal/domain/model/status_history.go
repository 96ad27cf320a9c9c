package model

import "time"

// StatusHistory は追記専用。遷移のたびに1行追加し、上書きはしない。
type StatusHistory struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID string `gorm:"type:varchar(64);not null;index" json:"order_id"`
	Status  string `gorm:"type:varchar(32);not null" json:"status"`
	// 遷移を観測した経路（poll / webhook / system）
	Source    string    `gorm:"type:varchar(16);not null" json:"source"`
	Note      string    `gorm:"type:varchar(255)" json:"note"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"timestamp"`
}
