package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/cfgsync/internal/logfields"
	"git.home.luguber.info/inful/cfgsync/internal/state"
)

// StateWatcher wakes the daemon when the operator-controlled fields of the state
// document change (remote, configuration, sleep tuning). Writes that only move the
// version tag, such as the daemon's own, are ignored.
type StateWatcher struct {
	statePath    string
	watcher      *fsnotify.Watcher
	wake         chan struct{}
	debounceTime time.Duration

	mu       sync.Mutex
	lastSeen string
	timer    *time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

// NewStateWatcher creates a watcher for the state document at statePath.
func NewStateWatcher(statePath string) (*StateWatcher, error) {
	absPath, err := filepath.Abs(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &StateWatcher{
		statePath:    absPath,
		watcher:      watcher,
		wake:         make(chan struct{}, 1),
		debounceTime: 250 * time.Millisecond,
		done:         make(chan struct{}),
	}, nil
}

// Wake delivers at most one pending signal per change.
func (sw *StateWatcher) Wake() <-chan struct{} { return sw.wake }

// Start begins watching. The directory is watched rather than the file so atomic
// replacement (write temp, rename) is seen.
func (sw *StateWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(sw.statePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	sw.mu.Lock()
	sw.lastSeen = sw.fingerprint()
	sw.mu.Unlock()

	if err := sw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch state directory %s: %w", dir, err)
	}

	slog.Info("Starting state watcher", logfields.Path(sw.statePath))
	go sw.watchLoop(ctx)
	return nil
}

// Stop closes the watcher.
func (sw *StateWatcher) Stop() error {
	var err error
	sw.stopOnce.Do(func() {
		close(sw.done)
		sw.mu.Lock()
		if sw.timer != nil {
			sw.timer.Stop()
		}
		sw.mu.Unlock()
		err = sw.watcher.Close()
	})
	return err
}

func (sw *StateWatcher) watchLoop(ctx context.Context) {
	name := filepath.Base(sw.statePath)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				sw.schedule()
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("State watcher error", logfields.Error(err))
		}
	}
}

// schedule coalesces bursts of events into one check after debounceTime.
func (sw *StateWatcher) schedule() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.debounceTime, sw.check)
}

func (sw *StateWatcher) check() {
	fp := sw.fingerprint()

	sw.mu.Lock()
	changed := fp != "" && fp != sw.lastSeen
	if fp != "" {
		sw.lastSeen = fp
	}
	sw.mu.Unlock()

	if !changed {
		return
	}
	slog.Debug("State intent changed", logfields.Path(sw.statePath))
	select {
	case sw.wake <- struct{}{}:
	default:
	}
}

// fingerprint returns the operator-controlled part of the document, or "" when it
// cannot be read.
func (sw *StateWatcher) fingerprint() string {
	// #nosec G304 - state path is operator-supplied
	data, err := os.ReadFile(sw.statePath)
	if err != nil {
		return ""
	}
	var st state.SyncState
	if err := json.Unmarshal(data, &st); err != nil {
		return ""
	}
	remote := ""
	if st.Remote != nil {
		remote = st.Remote.String()
	}
	return fmt.Sprintf("%s\x00%s\x00%d\x00%d\x00%d", remote, st.Configuration, st.MinSleepSecs, st.MaxSleepSecs, st.MaxSleepAfterHours)
}
