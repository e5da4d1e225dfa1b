package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"lobby-ledger/models"

	"github.com/gofiber/fiber/v2"
)

const (
	ssePollInterval = 2 * time.Second
	sseBatchSize    = 100
)

// StreamLobbyEventsSSE streams committed lobby events. Clients resume with
// the Last-Event-ID header or the ?after= query parameter.
func (s *LobbyService) StreamLobbyEventsSSE(c *fiber.Ctx) error {
	cursor := resumeCursor(c)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	reqCtx := c.Context()
	db := s.DB
	reqCtx.SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(ssePollInterval)
		defer ticker.Stop()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case <-ticker.C:
				events, err := EventsAfter(db, cursor, sseBatchSize)
				if err != nil {
					log.Printf("[SSE] query error after seq %d: %v", cursor, err)
					continue
				}
				if len(events) == 0 {
					// keepalive so dead clients surface as flush errors
					w.WriteString(":\n\n")
				} else {
					cursor = writeLobbyEvents(w, events)
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-reqCtx.Done():
				return
			}
		}
	})

	return nil
}

func resumeCursor(c *fiber.Ctx) uint64 {
	raw := c.Get("Last-Event-ID")
	if raw == "" {
		raw = c.Query("after")
	}
	cursor, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return cursor
}

// writeLobbyEvents writes one SSE frame per event and returns the last
// sequence number written.
func writeLobbyEvents(w *bufio.Writer, events []models.LobbyEvent) uint64 {
	var last uint64
	for _, ev := range events {
		last = ev.ID
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[SSE] failed to encode event %s: %v", ev.EventID, err)
			continue
		}
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, payload)
	}
	return last
}
