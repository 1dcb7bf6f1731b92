package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMinWithdrawal is applied when a wallet row is created by settlement.
var DefaultMinWithdrawal = decimal.NewFromInt(100)

// SellerWallet tracks seller earnings. Settlement credits PendingBalance and
// TotalEarned; the escrow sweep moves funds from pending to available.
type SellerWallet struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	SellerID         uint            `gorm:"not null;uniqueIndex:ux_seller_wallets_seller" json:"seller_id"`
	AvailableBalance decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"available_balance"`
	PendingBalance   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"pending_balance"`
	TotalEarned      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_earned"`
	TotalWithdrawn   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_withdrawn"`
	MinWithdrawal    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:100" json:"min_withdrawal"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
