package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionStatusPending = "PENDING"
	TransactionStatusSuccess = "SUCCESS"
	TransactionStatusFailed  = "FAILED"
)

// EscrowHoldPeriod is how long seller earnings stay pending after settlement.
const EscrowHoldPeriod = 24 * time.Hour

// Transaction is one line of a gateway order. Several transactions can share one
// gateway order when a buyer checks out more than one note.
type Transaction struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	GatewayOrderID   string          `gorm:"type:varchar(191);not null;index" json:"gateway_order_id"`
	GatewayPaymentID *string         `gorm:"type:varchar(191);default:null;index" json:"gateway_payment_id,omitempty"`
	BuyerID          uint            `gorm:"not null;index" json:"buyer_id"`
	SellerID         uint            `gorm:"not null;index" json:"seller_id"`
	NoteID           uint            `gorm:"not null;index" json:"note_id"`
	SellerEarning    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"seller_earning"`
	Status           string          `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	EscrowReleaseAt  *time.Time      `gorm:"default:null;index" json:"escrow_release_at,omitempty"`
	EscrowReleasedAt *time.Time      `gorm:"default:null" json:"escrow_released_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPending reports whether the transaction can still be settled.
func (t *Transaction) IsPending() bool {
	return t.Status == TransactionStatusPending
}

// CanTransitionTo enforces PENDING -> SUCCESS|FAILED and nothing else.
func CanTransitionTo(from, to string) bool {
	if from != TransactionStatusPending {
		return false
	}
	return to == TransactionStatusSuccess || to == TransactionStatusFailed
}
