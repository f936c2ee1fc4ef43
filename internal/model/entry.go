package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry records one applied balance mutation.
//
// Entry rows are append-only: never updated, never deleted. Each row carries
// the balance before and after the mutation so reconciliation can verify the
// incremental balance against the event history.
type LedgerEntry struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	UserID        int64           `gorm:"index;not null" json:"user_id"`
	EventNo       string          `gorm:"type:varchar(64);index;not null" json:"event_no"`
	Kind          string          `gorm:"type:varchar(20);not null" json:"kind"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"` // signed: credit positive, debit negative
	BalanceBefore decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
