package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventKindDeposit  = "DEPOSIT"
	EventKindWithdraw = "WITHDRAW"
	EventKindBuy      = "BUY"
	EventKindSwap     = "SWAP"
)

const (
	EventStatusPending    = "PENDING"
	EventStatusSuccessful = "SUCCESSFUL"
	EventStatusFailed     = "FAILED"
)

// ValidStatusTransitions describes the event lifecycle. PENDING is the only
// non-terminal state; SUCCESSFUL may still fall to FAILED when the applier
// finds the account underfunded at apply time.
var ValidStatusTransitions = map[string][]string{
	EventStatusPending:    {EventStatusSuccessful, EventStatusFailed},
	EventStatusSuccessful: {EventStatusFailed},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsCredit reports whether the kind increases the balance when applied.
func IsCredit(kind string) bool {
	return kind == EventKindDeposit
}

// IsDebit reports whether the kind decreases the balance when applied.
// Swap is balance-neutral and is neither.
func IsDebit(kind string) bool {
	return kind == EventKindWithdraw || kind == EventKindBuy
}

func IsValidKind(kind string) bool {
	switch kind {
	case EventKindDeposit, EventKindWithdraw, EventKindBuy, EventKindSwap:
		return true
	}
	return false
}

// Event is one financial action against an account.
//
// Status and Applied are distinct: Status records the business decision
// (admin approval or rejection), Applied records whether the balance
// mutation has happened. Applied flips false->true at most once.
type Event struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	EventNo   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"event_no"`
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Kind      string          `gorm:"type:varchar(20);not null" json:"kind"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Status    string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Applied   bool            `gorm:"not null;default:false" json:"applied"`
	Reference string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"reference"`

	// Kind-specific attributes.
	ItemName      string          `gorm:"type:varchar(100)" json:"item_name,omitempty"`       // BUY
	AccountNumber string          `gorm:"type:varchar(30)" json:"account_number,omitempty"`   // WITHDRAW
	BankName      string          `gorm:"type:varchar(100)" json:"bank_name,omitempty"`       // WITHDRAW
	FromAsset     string          `gorm:"type:varchar(50)" json:"from_asset,omitempty"`       // SWAP
	ToAsset       string          `gorm:"type:varchar(50)" json:"to_asset,omitempty"`         // SWAP
	Rate          decimal.Decimal `gorm:"type:decimal(20,8);default:1" json:"rate,omitempty"` // SWAP

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Event) TableName() string {
	return "ledger_event"
}
