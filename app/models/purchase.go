package models

import "time"

// Purchase grants a buyer access to a note. Exactly one row exists per settled
// transaction; TransactionID is unique.
type Purchase struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TransactionID uint      `gorm:"not null;uniqueIndex:ux_purchases_transaction" json:"transaction_id"`
	BuyerID       uint      `gorm:"not null;index:idx_purchases_buyer_note,priority:1" json:"buyer_id"`
	NoteID        uint      `gorm:"not null;index:idx_purchases_buyer_note,priority:2" json:"note_id"`
	WatermarkID   string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"watermark_id"`
	FileKey       string    `gorm:"type:varchar(512)" json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
