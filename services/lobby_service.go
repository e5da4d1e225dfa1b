package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"lobby-ledger/models"

	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LobbyConfig is fixed at construction.
type LobbyConfig struct {
	Name              string
	MaxPlayers        int
	TicketPrice       int64 // minor units
	PayoutDestination string
	EscrowAccount     string
}

func (c LobbyConfig) Validate() error {
	if c.MaxPlayers <= 0 {
		return fmt.Errorf("max players must be positive, got %d", c.MaxPlayers)
	}
	if c.TicketPrice <= 0 {
		return fmt.Errorf("ticket price must be positive, got %d", c.TicketPrice)
	}
	if c.PayoutDestination == "" {
		return errors.New("payout destination is required")
	}
	if c.EscrowAccount == "" {
		return errors.New("escrow account is required")
	}
	if strings.EqualFold(c.EscrowAccount, c.PayoutDestination) {
		return errors.New("escrow account and payout destination must differ")
	}
	// A full round must fit in one int64 total.
	if int64(c.MaxPlayers) > math.MaxInt64/c.TicketPrice {
		return fmt.Errorf("max players %d at ticket price %d overflows a round total", c.MaxPlayers, c.TicketPrice)
	}
	return nil
}

// Reserved reports whether address is one of the lobby's own accounts.
func (c LobbyConfig) Reserved(address string) bool {
	return strings.EqualFold(address, c.EscrowAccount) || strings.EqualFold(address, c.PayoutDestination)
}

// Slug is the storage/channel-safe form of the lobby name.
func (c LobbyConfig) Slug() string {
	if s := slug.Make(c.Name); s != "" {
		return s
	}
	return "lobby"
}

// PlayHook resolves what happens when a player plays. Outcome logic lives
// outside the ledger; the ledger only guarantees who may call it and when.
type PlayHook interface {
	Play(ctx context.Context, roundID uint64, player string) error
}

type PlayHookFunc func(ctx context.Context, roundID uint64, player string) error

func (f PlayHookFunc) Play(ctx context.Context, roundID uint64, player string) error {
	return f(ctx, roundID, player)
}

// LobbyService owns the round/ledger state. All mutations are serialized by
// mu and run as one database transaction each.
type LobbyService struct {
	DB        *gorm.DB
	Config    LobbyConfig
	Clock     RoundClock
	Vault     Vault
	Publisher Publisher
	PlayHook  PlayHook

	mu sync.Mutex
}

func NewLobbyService(db *gorm.DB, cfg LobbyConfig, clock clockwork.Clock) *LobbyService {
	rc := NewRoundClock(clock)
	return &LobbyService{
		DB:        db,
		Config:    cfg,
		Clock:     rc,
		Vault:     NewLedgerVault(rc.Clock),
		Publisher: NopPublisher{},
		PlayHook: PlayHookFunc(func(context.Context, uint64, string) error {
			return nil
		}),
	}
}

// EnsureFirstRound creates round 1 the first time the lobby is started.
func (s *LobbyService) EnsureFirstRound(ctx context.Context) (*models.Round, error) {
	if err := s.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lobby config: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var round models.Round
	err := s.DB.WithContext(ctx).Order("id DESC").First(&round).Error
	if err == nil {
		return &round, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load current round: %w", err)
	}
	round = models.Round{ID: 1, StartTime: s.Clock.Now(), Status: models.RoundStatusStarted}
	if err := s.DB.WithContext(ctx).Create(&round).Error; err != nil {
		return nil, fmt.Errorf("failed to create first round: %w", err)
	}
	log.Printf("[LOBBY] %s: round 1 started at %s", s.Config.Name, round.StartTime.Format(time.RFC3339))
	return &round, nil
}

// ledgerTx carries one operation's transaction and the events it emits.
type ledgerTx struct {
	tx     *gorm.DB
	now    time.Time
	events []models.LobbyEvent
}

func (lt *ledgerTx) emit(typ models.EventType, roundID uint64, player string, amount int64) error {
	ev, err := emit(lt.tx, lt.now, typ, roundID, player, amount)
	if err != nil {
		return err
	}
	lt.events = append(lt.events, ev)
	return nil
}

func (lt *ledgerTx) currentRound() (*models.Round, error) {
	var round models.Round
	err := lt.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("id DESC").
		First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock current round: %w", err)
	}
	return &round, nil
}

func (lt *ledgerTx) round(id uint64) (*models.Round, error) {
	var round models.Round
	err := lt.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock round %d: %w", id, err)
	}
	return &round, nil
}

// entry returns the player's row in the round, nil if they never joined it.
func (lt *ledgerTx) entry(roundID uint64, player string) (*models.RoundPlayer, error) {
	var rp models.RoundPlayer
	err := lt.tx.Where("round_id = ? AND player = ?", roundID, player).First(&rp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry of %s in round %d: %w", player, roundID, err)
	}
	return &rp, nil
}

func (lt *ledgerTx) saveRound(r *models.Round) error {
	if err := lt.tx.Omit(clause.Associations).Save(r).Error; err != nil {
		return fmt.Errorf("failed to save round %d: %w", r.ID, err)
	}
	return nil
}

func (lt *ledgerTx) saveEntry(rp *models.RoundPlayer) error {
	if err := lt.tx.Save(rp).Error; err != nil {
		return fmt.Errorf("failed to save entry of %s: %w", rp.Player, err)
	}
	return nil
}

// mutate runs fn as one serialized transaction, then hands the emitted
// events to the publisher. A publish failure leaves them for the relay.
func (s *LobbyService) mutate(ctx context.Context, fn func(lt *ledgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lt := &ledgerTx{now: s.Clock.Now()}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lt.tx = tx
		lt.events = lt.events[:0]
		return fn(lt)
	})
	if err != nil {
		return err
	}
	if err := DeliverEvents(ctx, s.DB.WithContext(ctx), s.Publisher, lt.events, s.Clock.Now()); err != nil {
		log.Printf("[LOBBY] event delivery deferred to relay: %v", err)
	}
	return nil
}

// Join records the caller's stake in the current round and returns that
// round's number. The join that reaches capacity also sweeps the round's
// funds to the payout destination.
func (s *LobbyService) Join(ctx context.Context, player string, amount int64) (uint64, error) {
	if s.Config.Reserved(player) {
		return 0, ErrReservedAccount
	}
	var roundID uint64
	err := s.mutate(ctx, func(lt *ledgerTx) error {
		round, err := lt.currentRound()
		if err != nil {
			return err
		}
		if round.Status != models.RoundStatusStarted {
			return ErrRoundNotActive
		}
		if amount != s.Config.TicketPrice {
			return ErrInvalidStake
		}
		entry, err := lt.entry(round.ID, player)
		if err != nil {
			return err
		}
		if entry != nil && entry.Stake > 0 {
			return ErrAlreadyJoined
		}
		if round.PlayerCount >= s.Config.MaxPlayers {
			return ErrLobbyFull
		}
		if round.TotalCollected > math.MaxInt64-amount {
			return ErrAmountOverflow
		}
		roundID = round.ID

		if entry == nil {
			entry = &models.RoundPlayer{RoundID: round.ID, Player: player}
		}
		entry.Stake = amount
		entry.JoinedAt = lt.now
		entry.RefundedAt = nil
		if err := lt.saveEntry(entry); err != nil {
			return err
		}
		round.PlayerCount++
		round.TotalCollected += amount

		if err := s.Vault.Deposit(lt.tx, round.ID, s.Config.EscrowAccount, amount); err != nil {
			return err
		}
		if err := lt.emit(models.EventJoined, round.ID, player, amount); err != nil {
			return err
		}
		log.Printf("[LOBBY] %s joined round %d (%d/%d)", player, round.ID, round.PlayerCount, s.Config.MaxPlayers)

		if round.PlayerCount == s.Config.MaxPlayers {
			return s.fillPayout(lt, round)
		}
		return lt.saveRound(round)
	})
	if err != nil {
		return 0, err
	}
	return roundID, nil
}

// fillPayout moves everything the round collected to the payout destination.
func (s *LobbyService) fillPayout(lt *ledgerTx, round *models.Round) error {
	if round.PaidOut {
		return ErrPayoutSettled
	}
	amount := round.TotalCollected
	round.TotalCollected = 0
	round.PaidOut = true
	round.PayoutAmount = amount
	now := lt.now
	round.PaidOutAt = &now
	if err := lt.saveRound(round); err != nil {
		return err
	}
	if err := s.Vault.Transfer(lt.tx, models.TransferKindPayout, round.ID, s.Config.EscrowAccount, s.Config.PayoutDestination, amount); err != nil {
		return err
	}
	log.Printf("[LOBBY] round %d full, paid %d to %s", round.ID, amount, s.Config.PayoutDestination)
	return nil
}

// Unjoin withdraws the caller from the current round while it is still
// preparing and refunds the full stake.
func (s *LobbyService) Unjoin(ctx context.Context, player string) error {
	return s.mutate(ctx, func(lt *ledgerTx) error {
		round, err := lt.currentRound()
		if err != nil {
			return err
		}
		entry, err := lt.entry(round.ID, player)
		if err != nil {
			return err
		}
		if entry == nil || entry.Stake == 0 {
			return ErrNotJoined
		}
		if PhaseAt(round.StartTime, lt.now) != PhasePrep {
			return ErrPrepWindowClosed
		}
		if round.PaidOut {
			return ErrPayoutSettled
		}

		stake := entry.Stake
		entry.Stake = 0
		now := lt.now
		entry.RefundedAt = &now
		if err := lt.saveEntry(entry); err != nil {
			return err
		}
		round.PlayerCount--
		round.TotalCollected -= stake
		if err := lt.saveRound(round); err != nil {
			return err
		}
		if err := lt.emit(models.EventUnjoined, round.ID, player, stake); err != nil {
			return err
		}
		if err := lt.emit(models.EventRefunded, round.ID, player, stake); err != nil {
			return err
		}
		log.Printf("[LOBBY] %s left round %d, refunding %d", player, round.ID, stake)
		return s.Vault.Transfer(lt.tx, models.TransferKindRefund, round.ID, s.Config.EscrowAccount, player, stake)
	})
}

// Play gates access to the game-resolution hook: only players of the
// current round, only during the play window.
func (s *LobbyService) Play(ctx context.Context, player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := s.DB.WithContext(ctx)
	var round models.Round
	if err := db.Order("id DESC").First(&round).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoundNotFound
		}
		return fmt.Errorf("failed to load current round: %w", err)
	}
	stake, err := stakeOf(db, round.ID, player)
	if err != nil {
		return err
	}
	if stake == 0 {
		return ErrNotJoinedRound
	}
	if round.Status != models.RoundStatusStarted {
		return ErrRoundNotActive
	}
	switch s.Clock.Phase(&round) {
	case PhasePrep:
		return ErrTooEarly
	case PhaseEnded:
		return ErrTooLate
	}
	return s.PlayHook.Play(ctx, round.ID, player)
}

// CancelRound marks the current round refundable. It moves no funds; each
// player claims their own refund. A round whose funds were already swept by
// the fill payout cannot be cancelled (PayoutSettled): escrow no longer
// holds its stakes, so refunds would be paid out of other rounds.
func (s *LobbyService) CancelRound(ctx context.Context) error {
	return s.mutate(ctx, func(lt *ledgerTx) error {
		round, err := lt.currentRound()
		if err != nil {
			return err
		}
		if PhaseAt(round.StartTime, lt.now) == PhasePrep {
			return ErrStillInPreparation
		}
		if round.Status != models.RoundStatusStarted {
			return ErrRoundNotActive
		}
		if round.PaidOut {
			return ErrPayoutSettled
		}
		round.Status = models.RoundStatusCancelled
		now := lt.now
		round.SettledAt = &now
		log.Printf("[LOBBY] round %d cancelled with %d player(s)", round.ID, round.PlayerCount)
		return lt.saveRound(round)
	})
}

// FinishRound closes the current round once its full duration has elapsed.
func (s *LobbyService) FinishRound(ctx context.Context) error {
	return s.mutate(ctx, func(lt *ledgerTx) error {
		round, err := lt.currentRound()
		if err != nil {
			return err
		}
		if PhaseAt(round.StartTime, lt.now) != PhaseEnded {
			return ErrRoundNotEnded
		}
		if round.Status != models.RoundStatusStarted {
			return ErrRoundNotActive
		}
		round.Status = models.RoundStatusFinished
		now := lt.now
		round.SettledAt = &now
		log.Printf("[LOBBY] round %d finished", round.ID)
		return lt.saveRound(round)
	})
}

// ClaimRefund returns the caller's stake from a cancelled round. A second
// claim fails because the entry is zeroed by the first.
func (s *LobbyService) ClaimRefund(ctx context.Context, player string, roundID uint64) error {
	return s.mutate(ctx, func(lt *ledgerTx) error {
		round, err := lt.round(roundID)
		if err != nil {
			return err
		}
		if round.Status != models.RoundStatusCancelled {
			return ErrRoundNotCancelled
		}
		entry, err := lt.entry(round.ID, player)
		if err != nil {
			return err
		}
		if entry == nil || entry.Stake == 0 {
			return ErrNotAParticipant
		}

		stake := entry.Stake
		entry.Stake = 0
		now := lt.now
		entry.RefundedAt = &now
		if err := lt.saveEntry(entry); err != nil {
			return err
		}
		round.TotalCollected -= stake
		round.ArchivedAt = nil
		if err := lt.saveRound(round); err != nil {
			return err
		}
		if err := lt.emit(models.EventRefunded, round.ID, player, stake); err != nil {
			return err
		}
		log.Printf("[LOBBY] %s claimed refund of %d from round %d", player, stake, round.ID)
		return s.Vault.Transfer(lt.tx, models.TransferKindRefund, round.ID, s.Config.EscrowAccount, player, stake)
	})
}

// StartNextRound opens round N+1 once round N is finished or cancelled.
func (s *LobbyService) StartNextRound(ctx context.Context) (*models.Round, error) {
	var next *models.Round
	err := s.mutate(ctx, func(lt *ledgerTx) error {
		round, err := lt.currentRound()
		if err != nil {
			return err
		}
		if !round.Status.Terminal() {
			return ErrRoundNotSettled
		}
		next = &models.Round{ID: round.ID + 1, StartTime: lt.now, Status: models.RoundStatusStarted}
		if err := lt.tx.Create(next).Error; err != nil {
			return fmt.Errorf("failed to create round %d: %w", next.ID, err)
		}
		log.Printf("[LOBBY] round %d started", next.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func stakeOf(db *gorm.DB, roundID uint64, player string) (int64, error) {
	var rp models.RoundPlayer
	err := db.Where("round_id = ? AND player = ?", roundID, player).First(&rp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load stake of %s: %w", player, err)
	}
	return rp.Stake, nil
}
