package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

// User holds what API-key authentication needs; profile data lives elsewhere.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(150)" json:"name"`
	Status     string    `gorm:"type:varchar(50);default:'active'" json:"status"`
	APIKeyHash string    `gorm:"type:varchar(64);index" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
