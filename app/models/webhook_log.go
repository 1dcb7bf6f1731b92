package models

import "time"

const (
	WebhookLogStatusProcessed = "PROCESSED"

	WebhookSourceGateway = "webhook"
	WebhookSourceManual  = "manual"
)

// WebhookLog is the idempotency record for settled payments. EventID is unique so a
// concurrent duplicate insert fails at the storage layer even if both callers passed
// the existence check.
type WebhookLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_logs_event" json:"event_id"`
	EventType   string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Source      string    `gorm:"type:varchar(20);not null;default:'webhook'" json:"source"`
	PayloadJSON string    `gorm:"type:text" json:"payload_json"`
	Status      string    `gorm:"type:varchar(20);not null" json:"status"`
	ProcessedAt time.Time `json:"processed_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
