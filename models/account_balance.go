// models/account_balance.go
package models

import (
	"time"
)

// AccountBalance holds the native-value balance of one address.
// The lobby's own escrow address is the balance the ledger "holds".
type AccountBalance struct {
	Address   string    `gorm:"primaryKey;type:varchar(128)" json:"address"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (AccountBalance) TableName() string {
	return "account_balances"
}

// TransferKind indicates why value moved
type TransferKind string

const (
	TransferKindDeposit TransferKind = "deposit" // stake entering escrow on join
	TransferKindPayout  TransferKind = "payout"  // fill payout to destination
	TransferKindRefund  TransferKind = "refund"  // unjoin or refund claim
)

// Transfer is an append-only record of every value movement.
type Transfer struct {
	ID          string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind        TransferKind `gorm:"type:varchar(16);not null;index" json:"kind"`
	RoundID     uint64       `gorm:"not null;index" json:"round_id"`
	FromAddress string       `gorm:"type:varchar(128)" json:"from_address,omitempty"` // empty for deposits
	ToAddress   string       `gorm:"type:varchar(128);not null" json:"to_address"`
	Amount      int64        `gorm:"not null" json:"amount"`
	CreatedAt   time.Time    `gorm:"not null;index" json:"created_at"`
}

func (Transfer) TableName() string {
	return "transfers"
}
