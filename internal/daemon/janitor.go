package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/cfgsync/internal/logfields"
	"git.home.luguber.info/inful/cfgsync/internal/workspace"
)

// Janitor periodically removes scratch directories left behind by crashed cycles.
type Janitor struct {
	scheduler  gocron.Scheduler
	clock      clockwork.Clock
	scratchDir string
	maxAge     time.Duration
}

// NewJanitor creates a janitor pruning entries in scratchDir older than maxAge
// every interval.
func NewJanitor(scratchDir string, interval, maxAge time.Duration, clock clockwork.Clock) (*Janitor, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	j := &Janitor{scheduler: s, clock: clock, scratchDir: scratchDir, maxAge: maxAge}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { j.RunOnce() }),
		gocron.WithName("scratch-janitor"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create janitor job: %w", err)
	}
	return j, nil
}

// Start begins the schedule; the first sweep runs immediately.
func (j *Janitor) Start() {
	slog.Info("Starting scratch janitor", logfields.Path(j.scratchDir), slog.Duration("max_age", j.maxAge))
	j.scheduler.Start()
}

// Stop gracefully shuts down the scheduler.
func (j *Janitor) Stop(_ context.Context) error {
	return j.scheduler.Shutdown()
}

// RunOnce performs one sweep and returns the removed paths.
func (j *Janitor) RunOnce() []string {
	removed, err := workspace.Prune(j.scratchDir, j.maxAge, j.clock.Now())
	if err != nil {
		slog.Warn("Scratch janitor failed", logfields.Error(err))
		return nil
	}
	for _, p := range removed {
		slog.Info("Removed stale scratch directory", logfields.Path(p))
	}
	return removed
}
