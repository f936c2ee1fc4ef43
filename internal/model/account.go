package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	KYCStatusUnverified = "unverified"
	KYCStatusPending    = "pending"
	KYCStatusVerified   = "verified"
)

// Account holds the incrementally maintained balance for one user.
// It is mutated only by the applier, under the per-account lock, and its
// balance must never be committed below zero.
type Account struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64           `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	KYCVerified bool            `gorm:"not null;default:false" json:"kyc_verified"`
	Country     string          `gorm:"type:varchar(100)" json:"country"`
	IDType      string          `gorm:"type:varchar(50)" json:"id_type"`
	IDNumber    string          `gorm:"type:varchar(100)" json:"id_number"`
	Version     int             `gorm:"not null;default:0" json:"version"` // optimistic lock
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
