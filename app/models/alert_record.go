package models

import "time"

const (
	AlertStatusDelivered = "DELIVERED"
	AlertStatusFailed    = "FAILED"
)

// AlertAttempt is one delivery try against the alert endpoint.
type AlertAttempt struct {
	Attempt    int       `json:"attempt"`
	At         time.Time `json:"at"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// AlertRecord is written once per alert after delivery finished. FAILED rows form
// the dead-letter queue; rows are never updated.
type AlertRecord struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Severity     string         `gorm:"type:varchar(16);not null;index" json:"severity"`
	Event        string         `gorm:"type:varchar(100);not null;index" json:"event"`
	Message      string         `gorm:"type:text" json:"message"`
	Metadata     map[string]any `gorm:"serializer:json;type:text" json:"metadata"`
	Environment  string         `gorm:"type:varchar(32)" json:"environment"`
	Attempts     []AlertAttempt `gorm:"serializer:json;type:text" json:"attempts"`
	AttemptCount int            `gorm:"not null;default:0" json:"attempt_count"`
	Status       string         `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}
