package models

import "time"

// EventType names an event emitted by the lobby
type EventType string

const (
	EventJoined   EventType = "Joined"
	EventUnjoined EventType = "Unjoined"
	EventRefunded EventType = "Refunded"
)

// LobbyEvent is an outbox row: written in the same transaction as the state
// change it describes, delivered to publishers afterwards.
type LobbyEvent struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"seq"`
	EventID     string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"event_id"`
	Type        EventType  `gorm:"type:varchar(16);not null;index" json:"type"`
	RoundID     uint64     `gorm:"not null;index" json:"round_id"`
	Player      string     `gorm:"type:varchar(128);not null" json:"player"`
	Amount      int64      `gorm:"not null" json:"amount"`
	EmittedAt   time.Time  `gorm:"not null" json:"emitted_at"`
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at,omitempty"`
}

func (LobbyEvent) TableName() string {
	return "lobby_events"
}

// AllModels lists every table the service migrates.
func AllModels() []interface{} {
	return []interface{}{
		&Round{},
		&RoundPlayer{},
		&AccountBalance{},
		&Transfer{},
		&LobbyEvent{},
	}
}
