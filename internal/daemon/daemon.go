// Package daemon runs the polling loop: sleep, check the remote's version tag, and
// when it moved pull, activate and record the new tag.
package daemon

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"git.home.luguber.info/inful/cfgsync/internal/backoff"
	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/events"
	"git.home.luguber.info/inful/cfgsync/internal/journal"
	"git.home.luguber.info/inful/cfgsync/internal/logfields"
	"git.home.luguber.info/inful/cfgsync/internal/metrics"
	"git.home.luguber.info/inful/cfgsync/internal/state"
)

// Status represents the current state of the daemon
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
)

// Syncer is the subset of the sync service a cycle needs.
type Syncer interface {
	FetchVersionTag(ctx context.Context, remote *url.URL) (string, error)
	Pull(ctx context.Context, remote *url.URL, dst string) error
	Activate(ctx context.Context, src, configuration string) error
}

// Daemon represents the main daemon service
type Daemon struct {
	store      state.Store
	syncer     Syncer
	clock      clockwork.Clock
	scheduler  *backoff.Scheduler
	scratchDir string
	wake       <-chan struct{}

	stateFailureLimit int
	stateFailures     int

	recorder  metrics.Recorder
	journal   journal.Journal
	publisher events.Publisher

	status    atomic.Value // Status
	startTime atomic.Value // time.Time

	mu                  sync.RWMutex
	last                *CycleResult
	consecutiveFailures int
	cycles              int
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option { return func(d *Daemon) { d.clock = c } }

// WithScheduler replaces the default sleep scheduler.
func WithScheduler(s *backoff.Scheduler) Option { return func(d *Daemon) { d.scheduler = s } }

// WithScratchDir sets the parent of per-cycle scratch directories (os.TempDir when empty).
func WithScratchDir(dir string) Option { return func(d *Daemon) { d.scratchDir = dir } }

// WithWake supplies a channel that cuts the current sleep short.
func WithWake(ch <-chan struct{}) Option { return func(d *Daemon) { d.wake = ch } }

// WithStateFailureLimit sets how many consecutive state-load failures end the daemon.
// Zero means never.
func WithStateFailureLimit(n int) Option { return func(d *Daemon) { d.stateFailureLimit = n } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(d *Daemon) { d.recorder = r } }

// WithJournal sets the cycle journal.
func WithJournal(j journal.Journal) Option { return func(d *Daemon) { d.journal = j } }

// WithPublisher sets the cycle event publisher.
func WithPublisher(p events.Publisher) Option { return func(d *Daemon) { d.publisher = p } }

// New creates a daemon over store and svc.
func New(store state.Store, svc Syncer, opts ...Option) *Daemon {
	d := &Daemon{
		store:     store,
		syncer:    svc,
		recorder:  metrics.NoopRecorder{},
		journal:   journal.Noop{},
		publisher: events.Noop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	if d.scheduler == nil {
		d.scheduler = backoff.NewScheduler(d.clock, nil)
	}
	d.status.Store(StatusStopped)
	d.startTime.Store(time.Time{})
	return d
}

// Run loops until ctx is canceled, which is a clean exit (nil). It returns an error
// only when the state document stays unreadable for the configured number of
// consecutive attempts.
func (d *Daemon) Run(ctx context.Context) error {
	d.status.Store(StatusStarting)
	d.startTime.Store(d.clock.Now())
	slog.Info("Daemon starting",
		slog.String("scratch_dir", d.scratchDir),
		slog.Int("state_failure_limit", d.stateFailureLimit))

	st, err := d.loadState(ctx)
	if err != nil {
		return d.fail(err)
	}
	if st == nil {
		fallback := state.Default(d.clock.Now())
		st = &fallback
	}

	d.status.Store(StatusRunning)
	for first := true; ; first = false {
		if !first {
			// tuning edited during the last cycle applies to this sleep; failures are counted after the wait
			if fresh, err := d.store.Load(ctx); err == nil {
				st = &fresh
			}
		}
		sleep := d.scheduler.Next(*st)
		d.recorder.ObserveSleep(sleep)
		slog.Debug("Sleeping before next check", logfields.Sleep(sleep))

		reason, err := d.scheduler.Wait(ctx, sleep, d.wake)
		if err != nil {
			return d.stop(ctx)
		}
		if reason == backoff.Woken {
			slog.Info("State changed, checking remote early")
		}

		loaded, err := d.loadState(ctx)
		if err != nil {
			return d.fail(err)
		}
		if loaded == nil {
			if ctx.Err() != nil {
				return d.stop(ctx)
			}
			continue
		}

		next, _ := d.RunCycle(ctx, *loaded)
		st = &next
		if ctx.Err() != nil {
			return d.stop(ctx)
		}
	}
}

// loadState returns the persisted record. A failure below the limit is logged and
// yields (nil, nil); reaching the limit yields a daemon error.
func (d *Daemon) loadState(ctx context.Context) (*state.SyncState, error) {
	st, err := d.store.Load(ctx)
	if err == nil {
		d.stateFailures = 0
		return &st, nil
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	d.stateFailures++
	slog.Warn("Failed to load state",
		logfields.Error(err),
		slog.Int("consecutive_failures", d.stateFailures),
		slog.Int("limit", d.stateFailureLimit))
	if d.stateFailureLimit > 0 && d.stateFailures >= d.stateFailureLimit {
		return nil, syncerrors.DaemonError("state document unreadable after repeated attempts", err).
			WithContext("attempts", d.stateFailures)
	}
	return nil, nil
}

func (d *Daemon) stop(ctx context.Context) error {
	d.status.Store(StatusStopped)
	slog.Info("Daemon stopped", slog.Any("reason", context.Cause(ctx)))
	return nil
}

func (d *Daemon) fail(err error) error {
	d.status.Store(StatusError)
	slog.Error("Daemon terminating", logfields.Error(err))
	return err
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	if s, ok := d.status.Load().(Status); ok {
		return s
	}
	return StatusStopped
}

// GetStartTime returns when Run was entered.
func (d *Daemon) GetStartTime() time.Time {
	t, _ := d.startTime.Load().(time.Time)
	return t
}

// LastCycle returns the most recent cycle result, or nil before the first cycle.
func (d *Daemon) LastCycle() *CycleResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return nil
	}
	c := *d.last
	return &c
}

// ConsecutiveFailures counts failed cycles since the last non-failed one.
func (d *Daemon) ConsecutiveFailures() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.consecutiveFailures
}

// Cycles counts completed cycles.
func (d *Daemon) Cycles() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cycles
}

// AcquireInstanceLock takes the exclusive daemon lock at path. Another daemon
// holding it is reported as a daemon error.
func AcquireInstanceLock(path string) (*state.Lock, error) {
	lock, err := state.TryLock(path)
	if err != nil {
		if stderrors.Is(err, state.ErrLocked) {
			return nil, syncerrors.DaemonError("another daemon is running on this state file", err).
				WithContext("lock", path)
		}
		if _, ok := syncerrors.As(err); ok {
			return nil, err
		}
		return nil, syncerrors.FilesystemError("acquire daemon lock", err).WithContext("lock", path)
	}
	return lock, nil
}
