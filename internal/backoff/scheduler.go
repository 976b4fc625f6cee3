package backoff

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/cfgsync/internal/state"
)

// WakeReason tells the caller why Wait returned.
type WakeReason int

const (
	// Elapsed means the full duration passed.
	Elapsed WakeReason = iota
	// Woken means a signal on the wake channel cut the sleep short.
	Woken
	// Canceled means the context ended; Wait also returns ctx.Err().
	Canceled
)

func (r WakeReason) String() string {
	switch r {
	case Elapsed:
		return "elapsed"
	case Woken:
		return "woken"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Scheduler owns the clock and the random source used between daemon cycles.
type Scheduler struct {
	clock  clockwork.Clock
	source Source
}

// NewScheduler returns a Scheduler. Nil arguments select the real clock and DefaultSource.
func NewScheduler(clock clockwork.Clock, source Source) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if source == nil {
		source = DefaultSource()
	}
	return &Scheduler{clock: clock, source: source}
}

// Next computes the sleep for st against the scheduler's clock.
func (s *Scheduler) Next(st state.SyncState) time.Duration {
	return SleepDuration(st, s.clock.Now(), s.source)
}

// Wait blocks for d, until wake receives, or until ctx is done. A nil wake channel never fires.
func (s *Scheduler) Wait(ctx context.Context, d time.Duration, wake <-chan struct{}) (WakeReason, error) {
	if err := ctx.Err(); err != nil {
		return Canceled, err
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Canceled, ctx.Err()
	case <-wake:
		return Woken, nil
	case <-timer.Chan():
		return Elapsed, nil
	}
}
