package models

import "time"

// Note is the sellable item. Only the fields settlement reads or writes are mapped.
type Note struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SellerID      uint      `gorm:"not null;index" json:"seller_id"`
	Title         string    `gorm:"type:varchar(255)" json:"title"`
	FileKey       string    `gorm:"type:varchar(512)" json:"-"`
	PurchaseCount int64     `gorm:"not null;default:0" json:"purchase_count"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
