// workers/event_relay_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"lobby-ledger/services"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// EventRelayWorker republishes outbox events whose delivery failed right
// after commit.
type EventRelayWorker struct {
	DB        *gorm.DB
	Publisher services.Publisher
	Clock     clockwork.Clock
	Interval  time.Duration
	BatchSize int
}

func NewEventRelayWorker(db *gorm.DB, publisher services.Publisher, clock clockwork.Clock, interval time.Duration) *EventRelayWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &EventRelayWorker{
		DB:        db,
		Publisher: publisher,
		Clock:     clock,
		Interval:  interval,
		BatchSize: 200,
	}
}

func (w *EventRelayWorker) Start(ctx context.Context) {
	log.Printf("🔁 [RELAY] Starting event relay (every %s)", w.Interval)
	go w.run(ctx)
}

func (w *EventRelayWorker) run(ctx context.Context) {
	ticker := w.Clock.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[RELAY] Event relay stopped.")
			return
		case <-ticker.Chan():
			n, err := w.RelayOnce(ctx)
			if err != nil {
				// Events stay pending, retried next tick
				log.Printf("❌ [RELAY] %v", err)
				continue
			}
			if n > 0 {
				log.Printf("📤 [RELAY] Delivered %d pending event(s)", n)
			}
		}
	}
}

// RelayOnce delivers pending events in emission order, one batch at a
// time, and returns how many were delivered.
func (w *EventRelayWorker) RelayOnce(ctx context.Context) (int, error) {
	db := w.DB.WithContext(ctx)
	total := 0
	for {
		events, err := services.PendingEvents(db, w.BatchSize)
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			return total, nil
		}
		if err := services.DeliverEvents(ctx, db, w.Publisher, events, w.Clock.Now()); err != nil {
			return total, err
		}
		total += len(events)
		if len(events) < w.BatchSize {
			return total, nil
		}
	}
}
