package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lobby-ledger/models"

	"gorm.io/gorm"
)

// RoundSummary is the read view of a round, phase included.
type RoundSummary struct {
	ID             uint64     `json:"id"`
	Status         string     `json:"status"`
	Phase          string     `json:"phase"`
	StartTime      time.Time  `json:"start_time"`
	PlayerCount    int        `json:"player_count"`
	MaxPlayers     int        `json:"max_players"`
	TicketPrice    int64      `json:"ticket_price"`
	TotalCollected int64      `json:"total_collected"`
	PaidOut        bool       `json:"paid_out"`
	PayoutAmount   int64      `json:"payout_amount"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
}

func (s *LobbyService) loadRound(ctx context.Context, id uint64) (*models.Round, error) {
	var round models.Round
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load round %d: %w", id, err)
	}
	return &round, nil
}

// CurrentRoundNo returns the number of the newest round.
func (s *LobbyService) CurrentRoundNo(ctx context.Context) (uint64, error) {
	var round models.Round
	err := s.DB.WithContext(ctx).Order("id DESC").First(&round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrRoundNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load current round: %w", err)
	}
	return round.ID, nil
}

func (s *LobbyService) RoundStatus(ctx context.Context, roundID uint64) (models.RoundStatus, error) {
	round, err := s.loadRound(ctx, roundID)
	if err != nil {
		return 0, err
	}
	return round.Status, nil
}

func (s *LobbyService) PlayerCount(ctx context.Context, roundID uint64) (int, error) {
	round, err := s.loadRound(ctx, roundID)
	if err != nil {
		return 0, err
	}
	return round.PlayerCount, nil
}

func (s *LobbyService) Summary(ctx context.Context, roundID uint64) (*RoundSummary, error) {
	round, err := s.loadRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return &RoundSummary{
		ID:             round.ID,
		Status:         round.Status.String(),
		Phase:          s.Clock.Phase(round).String(),
		StartTime:      round.StartTime,
		PlayerCount:    round.PlayerCount,
		MaxPlayers:     s.Config.MaxPlayers,
		TicketPrice:    s.Config.TicketPrice,
		TotalCollected: round.TotalCollected,
		PaidOut:        round.PaidOut,
		PayoutAmount:   round.PayoutAmount,
		SettledAt:      round.SettledAt,
	}, nil
}

// Stake returns the player's recorded stake in a round (0 if none).
func (s *LobbyService) Stake(ctx context.Context, roundID uint64, player string) (int64, error) {
	return stakeOf(s.DB.WithContext(ctx), roundID, player)
}

// HeldBalance is the value currently held in escrow across all rounds.
func (s *LobbyService) HeldBalance(ctx context.Context) (int64, error) {
	return BalanceOf(s.DB.WithContext(ctx), s.Config.EscrowAccount)
}

func (s *LobbyService) BalanceOf(ctx context.Context, address string) (int64, error) {
	return BalanceOf(s.DB.WithContext(ctx), address)
}

// StakeSum adds up the non-zero stakes recorded against a round.
func (s *LobbyService) StakeSum(ctx context.Context, roundID uint64) (int64, error) {
	var sum int64
	err := s.DB.WithContext(ctx).Model(&models.RoundPlayer{}).
		Where("round_id = ?", roundID).
		Select("COALESCE(SUM(stake), 0)").
		Scan(&sum).Error
	return sum, err
}
