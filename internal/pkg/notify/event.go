package notify

import (
	"time"

	"github.com/notemarket/notemarket/app/models"
)

// NotificationEvent is the message value written to the notification topic.
type NotificationEvent struct {
	ID          uint      `json:"id"`
	UserID      uint      `json:"user_id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	ReferenceID string    `json:"reference_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func eventFromModel(n models.Notification) NotificationEvent {
	return NotificationEvent{
		ID:          n.ID,
		UserID:      n.UserID,
		Type:        n.Type,
		Content:     n.Content,
		ReferenceID: n.ReferenceID,
		CreatedAt:   n.CreatedAt,
	}
}
