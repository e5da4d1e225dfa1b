// services/round_clock.go
package services

import (
	"time"

	"lobby-ledger/models"

	"github.com/jonboulle/clockwork"
)

const (
	PrepDuration  = 1800 * time.Second
	RoundDuration = 3600 * time.Second
)

// Phase is the time-derived sub-state of a round. It is never stored.
type Phase int

const (
	PhasePrep Phase = iota
	PhasePlay
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhasePrep:
		return "PREP"
	case PhasePlay:
		return "PLAY"
	default:
		return "ENDED"
	}
}

// PhaseAt derives the phase of a round that started at start, as seen at now.
// The prep window includes its last second: a round is still preparing when
// exactly PrepDuration has elapsed.
func PhaseAt(start, now time.Time) Phase {
	elapsed := now.Sub(start)
	switch {
	case elapsed >= RoundDuration:
		return PhaseEnded
	case elapsed > PrepDuration:
		return PhasePlay
	default:
		return PhasePrep
	}
}

// RoundClock reads the injected clock and reports a round's phase.
type RoundClock struct {
	Clock clockwork.Clock
}

func NewRoundClock(clock clockwork.Clock) RoundClock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return RoundClock{Clock: clock}
}

func (rc RoundClock) Now() time.Time {
	return rc.Clock.Now()
}

func (rc RoundClock) Phase(r *models.Round) Phase {
	return PhaseAt(r.StartTime, rc.Clock.Now())
}
