// services/archive_service.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"lobby-ledger/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// ObjectStore receives round snapshots.
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, v interface{}) error
}

// RoundSnapshot is the archived form of a settled round.
type RoundSnapshot struct {
	Lobby      string              `json:"lobby"`
	Round      models.Round        `json:"round"`
	Events     []models.LobbyEvent `json:"events"`
	Transfers  []models.Transfer   `json:"transfers"`
	ArchivedAt time.Time           `json:"archived_at"`
}

// RoundArchiver uploads finished and cancelled rounds to object storage.
type RoundArchiver struct {
	DB        *gorm.DB
	Store     ObjectStore
	LobbySlug string
	Clock     clockwork.Clock
	BatchSize int
}

func NewRoundArchiver(db *gorm.DB, store ObjectStore, lobbySlug string, clock clockwork.Clock) *RoundArchiver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RoundArchiver{
		DB:        db,
		Store:     store,
		LobbySlug: lobbySlug,
		Clock:     clock,
		BatchSize: 50,
	}
}

func (a *RoundArchiver) key(roundID uint64) string {
	return fmt.Sprintf("%s/rounds/%06d.json", a.LobbySlug, roundID)
}

// ArchiveSettled uploads every terminal round not archived since its last
// change and returns how many were written.
func (a *RoundArchiver) ArchiveSettled(ctx context.Context) (int, error) {
	db := a.DB.WithContext(ctx)

	var rounds []models.Round
	err := db.Preload("Players").
		Where("status IN ? AND archived_at IS NULL",
			[]models.RoundStatus{models.RoundStatusFinished, models.RoundStatusCancelled}).
		Order("id ASC").
		Limit(a.BatchSize).
		Find(&rounds).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load settled rounds: %w", err)
	}

	archived := 0
	for _, round := range rounds {
		snap := RoundSnapshot{Lobby: a.LobbySlug, Round: round, ArchivedAt: a.Clock.Now()}
		if err := db.Where("round_id = ?", round.ID).Order("id ASC").Find(&snap.Events).Error; err != nil {
			return archived, fmt.Errorf("failed to load events of round %d: %w", round.ID, err)
		}
		if err := db.Where("round_id = ?", round.ID).Order("created_at ASC").Find(&snap.Transfers).Error; err != nil {
			return archived, fmt.Errorf("failed to load transfers of round %d: %w", round.ID, err)
		}
		if err := a.Store.PutJSON(ctx, a.key(round.ID), snap); err != nil {
			return archived, err
		}
		// A refund claimed during the upload lowers total_collected; leave
		// such a round unmarked so the next run picks up the new state.
		res := db.Model(&models.Round{}).
			Where("id = ? AND archived_at IS NULL AND total_collected = ?", round.ID, round.TotalCollected).
			UpdateColumn("archived_at", snap.ArchivedAt)
		if res.Error != nil {
			return archived, fmt.Errorf("failed to mark round %d archived: %w", round.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		archived++
		log.Printf("[ARCHIVE] round %d (%s) -> %s", round.ID, round.Status, a.key(round.ID))
	}
	return archived, nil
}

// StartArchiveScheduler runs ArchiveSettled every interval until the
// returned scheduler is shut down.
func (a *RoundArchiver) StartArchiveScheduler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(a.Clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create archive scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := a.ArchiveSettled(ctx)
			if err != nil {
				log.Printf("[ARCHIVE] run failed after %d round(s): %v", n, err)
				return
			}
			if n > 0 {
				log.Printf("✅ [ARCHIVE] archived %d round(s)", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule archive job: %w", err)
	}

	sched.Start()
	return sched, nil
}
