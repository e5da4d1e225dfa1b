package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lobby-ledger/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Publisher delivers committed lobby events to the outside world.
// Delivery is at-least-once: a publisher may see the same event twice.
type Publisher interface {
	Publish(ctx context.Context, events []models.LobbyEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []models.LobbyEvent) error { return nil }

// MultiPublisher fans out to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, events []models.LobbyEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// emit appends an event to the outbox inside tx.
func emit(tx *gorm.DB, at time.Time, typ models.EventType, roundID uint64, player string, amount int64) (models.LobbyEvent, error) {
	ev := models.LobbyEvent{
		EventID:   uuid.NewString(),
		Type:      typ,
		RoundID:   roundID,
		Player:    player,
		Amount:    amount,
		EmittedAt: at,
	}
	if err := tx.Create(&ev).Error; err != nil {
		return ev, fmt.Errorf("failed to record %s event: %w", typ, err)
	}
	return ev, nil
}

// DeliverEvents publishes events and marks them delivered. Events stay
// pending when the publisher fails so the relay worker can retry them.
func DeliverEvents(ctx context.Context, db *gorm.DB, p Publisher, events []models.LobbyEvent, now time.Time) error {
	if len(events) == 0 {
		return nil
	}
	if err := p.Publish(ctx, events); err != nil {
		return fmt.Errorf("failed to publish %d event(s): %w", len(events), err)
	}
	ids := make([]uint64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	if err := db.Model(&models.LobbyEvent{}).
		Where("id IN ?", ids).
		Update("delivered_at", now).Error; err != nil {
		return fmt.Errorf("failed to mark events delivered: %w", err)
	}
	return nil
}

// PendingEvents returns undelivered events in emission order.
func PendingEvents(db *gorm.DB, limit int) ([]models.LobbyEvent, error) {
	var events []models.LobbyEvent
	err := db.Where("delivered_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// EventsAfter returns events with a sequence number greater than after.
func EventsAfter(db *gorm.DB, after uint64, limit int) ([]models.LobbyEvent, error) {
	var events []models.LobbyEvent
	err := db.Where("id > ?", after).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
