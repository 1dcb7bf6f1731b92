package models

import "time"

const (
	NotificationTypeSale     = "sale"
	NotificationTypePurchase = "purchase"
)

// Notification doubles as the outbox for the Kafka relay: PublishedAt stays nil
// until the relay has handed the row to the broker.
type Notification struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"index" json:"user_id"`
	Type        string     `gorm:"type:varchar(50)" json:"type" validate:"oneof=sale purchase"`
	Content     string     `gorm:"type:text" json:"content"`
	ReferenceID string     `gorm:"type:varchar(191);index" json:"reference_id"`
	IsRead      bool       `gorm:"default:false" json:"is_read"`
	PublishedAt *time.Time `gorm:"default:null;index" json:"published_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
