package models

import (
	"time"
)

// RoundStatus is the persisted settlement state of a round.
type RoundStatus int

const (
	RoundStatusStarted   RoundStatus = 0 // accepting players
	RoundStatusFinished  RoundStatus = 1 // terminal, normal end
	RoundStatusCancelled RoundStatus = 2 // terminal, refundable
)

func (s RoundStatus) String() string {
	switch s {
	case RoundStatusStarted:
		return "STARTED"
	case RoundStatusFinished:
		return "FINISHED"
	case RoundStatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further status transition is allowed.
func (s RoundStatus) Terminal() bool {
	return s == RoundStatusFinished || s == RoundStatusCancelled
}

// Round is one time-boxed cycle of the lobby with its own player set and fund pool.
type Round struct {
	ID             uint64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	StartTime      time.Time   `gorm:"not null" json:"start_time"`
	Status         RoundStatus `gorm:"type:int;not null;default:0;index" json:"status"`
	TotalCollected int64       `gorm:"not null;default:0" json:"total_collected"` // minor units
	PlayerCount    int         `gorm:"not null;default:0" json:"player_count"`

	// Fill payout bookkeeping
	PaidOut      bool       `gorm:"not null;default:false" json:"paid_out"`
	PayoutAmount int64      `gorm:"not null;default:0" json:"payout_amount"`
	PaidOutAt    *time.Time `json:"paid_out_at,omitempty"`

	SettledAt  *time.Time `json:"settled_at,omitempty"`
	ArchivedAt *time.Time `gorm:"index" json:"archived_at,omitempty"`

	Players []RoundPlayer `json:"players,omitempty" gorm:"foreignKey:RoundID"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Round) TableName() string {
	return "rounds"
}

// RoundPlayer is a player's entry in a round. Stake 0 means not joined (or refunded).
type RoundPlayer struct {
	ID         uint64     `gorm:"primaryKey" json:"id"`
	RoundID    uint64     `gorm:"not null;uniqueIndex:idx_round_players_round_player" json:"round_id"`
	Player     string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_round_players_round_player;index" json:"player"`
	Stake      int64      `gorm:"not null;default:0" json:"stake"`
	JoinedAt   time.Time  `gorm:"not null" json:"joined_at"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (RoundPlayer) TableName() string {
	return "round_players"
}
