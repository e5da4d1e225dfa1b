package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"lobby-ledger/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Vault moves native value between addresses. Every method runs on the
// caller's transaction so that a failed transfer rolls back the whole
// operation that requested it.
type Vault interface {
	Deposit(tx *gorm.DB, roundID uint64, to string, amount int64) error
	Transfer(tx *gorm.DB, kind models.TransferKind, roundID uint64, from, to string, amount int64) error
}

// LedgerVault keeps balances in the account_balances table.
type LedgerVault struct {
	Clock clockwork.Clock
}

func NewLedgerVault(clock clockwork.Clock) *LedgerVault {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LedgerVault{Clock: clock}
}

// Deposit credits value that arrived together with a call (a payable join).
func (v *LedgerVault) Deposit(tx *gorm.DB, roundID uint64, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	now := v.Clock.Now()
	if err := v.credit(tx, to, amount, now); err != nil {
		return err
	}
	return v.record(tx, models.TransferKindDeposit, roundID, "", to, amount, now)
}

// Transfer debits from and credits to. It fails with ErrInsufficientFunds
// when from cannot cover the amount.
func (v *LedgerVault) Transfer(tx *gorm.DB, kind models.TransferKind, roundID uint64, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	now := v.Clock.Now()

	var src models.AccountBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("address = ?", from).
		First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInsufficientFunds
	}
	if err != nil {
		return fmt.Errorf("failed to lock balance of %s: %w", from, err)
	}
	if src.Balance < amount {
		log.Printf("[VAULT] %s has %d, cannot send %d to %s", from, src.Balance, amount, to)
		return ErrInsufficientFunds
	}

	if err := tx.Model(&models.AccountBalance{}).
		Where("address = ?", from).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": now,
		}).Error; err != nil {
		return fmt.Errorf("failed to debit %s: %w", from, err)
	}
	if err := v.credit(tx, to, amount, now); err != nil {
		return err
	}
	return v.record(tx, kind, roundID, from, to, amount, now)
}

func (v *LedgerVault) credit(tx *gorm.DB, to string, amount int64, now time.Time) error {
	var dst models.AccountBalance
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("address = ?", to).
		Limit(1).
		Find(&dst).Error; err != nil {
		return fmt.Errorf("failed to lock balance of %s: %w", to, err)
	}
	if dst.Balance > math.MaxInt64-amount {
		log.Printf("[VAULT] crediting %d to %s would overflow its balance %d", amount, to, dst.Balance)
		return ErrAmountOverflow
	}
	row := models.AccountBalance{Address: to, Balance: amount, CreatedAt: now, UpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("account_balances.balance + ?", amount),
			"updated_at": now,
		}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to credit %s: %w", to, err)
	}
	return nil
}

func (v *LedgerVault) record(tx *gorm.DB, kind models.TransferKind, roundID uint64, from, to string, amount int64, now time.Time) error {
	t := models.Transfer{
		ID:          uuid.NewString(),
		Kind:        kind,
		RoundID:     roundID,
		FromAddress: from,
		ToAddress:   to,
		Amount:      amount,
		CreatedAt:   now,
	}
	if err := tx.Create(&t).Error; err != nil {
		return fmt.Errorf("failed to record %s transfer: %w", kind, err)
	}
	return nil
}

// BalanceOf returns the balance of address, 0 if it never received value.
func BalanceOf(db *gorm.DB, address string) (int64, error) {
	var acc models.AccountBalance
	err := db.Where("address = ?", address).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}
