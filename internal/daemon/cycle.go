package daemon

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/events"
	"git.home.luguber.info/inful/cfgsync/internal/journal"
	"git.home.luguber.info/inful/cfgsync/internal/logfields"
	"git.home.luguber.info/inful/cfgsync/internal/metrics"
	"git.home.luguber.info/inful/cfgsync/internal/state"
	"git.home.luguber.info/inful/cfgsync/internal/workspace"
)

// Cycle stages, used as metric labels and log fields.
const (
	StageFetchTag = "fetch_tag"
	StagePull     = "pull"
	StageActivate = "activate"
	StagePersist  = "persist"
)

const recordTimeout = 5 * time.Second

// CycleResult summarizes one pass of the loop.
type CycleResult struct {
	CycleID       string          `json:"cycle_id"`
	StartedAt     time.Time       `json:"started_at"`
	Duration      time.Duration   `json:"duration"`
	Remote        string          `json:"remote,omitempty"`
	Configuration string          `json:"configuration,omitempty"`
	PreviousTag   string          `json:"previous_tag,omitempty"`
	VersionTag    string          `json:"version_tag,omitempty"`
	Outcome       metrics.Outcome `json:"outcome"`
	Stage         string          `json:"stage,omitempty"`
	Err           error           `json:"-"`
}

// RunCycle performs one check against the remote for st and returns the state the
// next sleep should be computed from. The state is persisted only after the new
// configuration was pulled and activated; every other path leaves it untouched.
func (d *Daemon) RunCycle(ctx context.Context, st state.SyncState) (state.SyncState, CycleResult) {
	res := CycleResult{
		CycleID:       uuid.NewString(),
		StartedAt:     d.clock.Now(),
		Configuration: st.Configuration,
		PreviousTag:   st.LastVersionTag,
	}
	logger := slog.With(logfields.CycleID(res.CycleID))

	next := d.cycle(ctx, logger, st, &res)

	res.Duration = d.clock.Since(res.StartedAt)
	d.finish(ctx, logger, res)
	return next, res
}

func (d *Daemon) cycle(ctx context.Context, logger *slog.Logger, st state.SyncState, res *CycleResult) state.SyncState {
	remote, err := st.RequireRemote()
	if err != nil {
		logger.Warn("Remote not set, skipping cycle")
		res.Outcome, res.Err = metrics.OutcomeSkipped, err
		return st
	}
	res.Remote = remote.Redacted()
	logger = logger.With(logfields.Remote(res.Remote))

	var tag string
	err = d.stage(StageFetchTag, func() error {
		var ferr error
		tag, ferr = d.syncer.FetchVersionTag(ctx, remote)
		return ferr
	})
	if err != nil {
		d.transportError(remote, StageFetchTag, err)
		logger.Warn("Failed to fetch version tag", logfields.Error(err))
		res.Outcome, res.Stage, res.Err = metrics.OutcomeFailed, StageFetchTag, err
		return st
	}
	res.VersionTag = tag

	if tag == st.LastVersionTag {
		logger.Debug("Remote unchanged", logfields.VersionTag(tag))
		res.Outcome = metrics.OutcomeUnchanged
		return st
	}

	configuration, err := st.RequireConfiguration()
	if err != nil {
		logger.Warn("Configuration not set, skipping activation", logfields.VersionTag(tag))
		res.Outcome, res.Err = metrics.OutcomeSkipped, err
		return st
	}

	logger.Info("New version detected",
		logfields.PreviousTag(st.LastVersionTag),
		logfields.VersionTag(tag),
		logfields.Configuration(configuration))

	ws := workspace.NewManager(d.scratchDir)
	if err := ws.Create(); err != nil {
		logger.Error("Failed to create scratch directory", logfields.Error(err))
		res.Outcome, res.Stage, res.Err = metrics.OutcomeFailed, StagePull, syncerrors.FilesystemError("create scratch", err)
		return st
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Warn("Failed to remove scratch directory", logfields.Path(ws.GetPath()), logfields.Error(err))
		}
	}()
	dir := ws.GetPath()

	if err := d.stage(StagePull, func() error { return d.syncer.Pull(ctx, remote, dir) }); err != nil {
		d.transportError(remote, StagePull, err)
		logger.Error("Failed to pull configuration", logfields.Error(err))
		res.Outcome, res.Stage, res.Err = metrics.OutcomeFailed, StagePull, err
		return st
	}

	if err := d.stage(StageActivate, func() error { return d.syncer.Activate(ctx, dir, configuration) }); err != nil {
		logger.Error("Activation failed, will retry", logfields.Configuration(configuration), logfields.Error(err))
		res.Outcome, res.Stage, res.Err = metrics.OutcomeFailed, StageActivate, err
		return st
	}

	now := d.clock.Now()
	var saved state.SyncState
	err = d.stage(StagePersist, func() error {
		var uerr error
		saved, uerr = d.store.Update(ctx, func(cur state.SyncState) (state.SyncState, error) {
			if cur.Remote == nil || cur.Remote.String() != remote.String() {
				// remote changed while we were activating; the tag belongs to the old one
				logger.Warn("Remote changed during cycle, not recording tag")
				return cur, nil
			}
			return cur.WithReconfiguration(tag, now), nil
		})
		return uerr
	})
	if err != nil {
		logger.Error("Activated but failed to persist state", logfields.Error(err))
		res.Outcome, res.Stage, res.Err = metrics.OutcomeFailed, StagePersist, err
		return st
	}

	d.recorder.SetLastActivation(now)
	logger.Info("Configuration activated", logfields.VersionTag(tag), logfields.Configuration(configuration))
	res.Outcome = metrics.OutcomeActivated
	return saved
}

func (d *Daemon) stage(name string, fn func() error) error {
	start := d.clock.Now()
	err := fn()
	d.recorder.ObserveStageDuration(name, d.clock.Since(start))
	return err
}

func (d *Daemon) transportError(remote *url.URL, op string, err error) {
	if syncerrors.IsCategory(err, syncerrors.CategoryTransport) {
		d.recorder.IncTransportError(remote.Scheme, op)
	}
}

// finish records res to metrics, the journal and the event bus, and updates the
// in-memory view served by the health endpoint.
func (d *Daemon) finish(ctx context.Context, logger *slog.Logger, res CycleResult) {
	d.recorder.ObserveCycleDuration(res.Duration)
	d.recorder.IncCycleOutcome(res.Outcome)

	d.mu.Lock()
	last := res
	d.last = &last
	d.cycles++
	if res.Outcome == metrics.OutcomeFailed {
		d.consecutiveFailures++
	} else {
		d.consecutiveFailures = 0
	}
	d.mu.Unlock()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := d.journal.Record(rctx, res.journalEntry()); err != nil {
		logger.Warn("Failed to journal cycle", logfields.Error(err))
	}
	if err := d.publisher.Publish(rctx, res.event()); err != nil {
		logger.Warn("Failed to publish cycle event", logfields.Error(err))
	}

	logger.Debug("Cycle finished",
		logfields.Outcome(string(res.Outcome)),
		logfields.DurationMS(float64(res.Duration.Microseconds())/1000))
}

func (r CycleResult) errorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r CycleResult) journalEntry() journal.Entry {
	return journal.Entry{
		CycleID:       r.CycleID,
		StartedAt:     r.StartedAt,
		Duration:      r.Duration,
		Remote:        r.Remote,
		Configuration: r.Configuration,
		PreviousTag:   r.PreviousTag,
		VersionTag:    r.VersionTag,
		Outcome:       string(r.Outcome),
		Error:         r.errorText(),
	}
}

func (r CycleResult) event() events.CycleEvent {
	return events.CycleEvent{
		CycleID:       r.CycleID,
		Timestamp:     r.StartedAt.Add(r.Duration).UTC(),
		Outcome:       string(r.Outcome),
		Remote:        r.Remote,
		Configuration: r.Configuration,
		PreviousTag:   r.PreviousTag,
		VersionTag:    r.VersionTag,
		DurationMS:    r.Duration.Milliseconds(),
		Error:         r.errorText(),
	}
}
