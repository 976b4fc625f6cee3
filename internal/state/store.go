package state

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// Store loads and saves the sync record.
type Store interface {
	Load(ctx context.Context) (SyncState, error)
	Save(ctx context.Context, st SyncState) error
	// Update runs fn against the freshest record and saves the result, serialized
	// against other Update callers.
	Update(ctx context.Context, fn func(SyncState) (SyncState, error)) (SyncState, error)
}

// FileStore persists the record as a JSON document at a fixed path.
type FileStore struct {
	path  string
	clock clockwork.Clock
}

// NewFileStore returns a store for the record at path.
func NewFileStore(path string, clock clockwork.Clock) *FileStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FileStore{path: path, clock: clock}
}

// Path returns the location of the state document.
func (s *FileStore) Path() string { return s.path }

// UpdateLockPath is the file locked around read-modify-write cycles.
func (s *FileStore) UpdateLockPath() string { return s.path + ".lock" }

// DaemonLockPath is the file a running daemon keeps locked for its lifetime.
func (s *FileStore) DaemonLockPath() string { return s.path + ".daemon.lock" }

// Load reads the record. A missing document yields defaults stamped with the current time;
// an unreadable, malformed or inconsistent one is a configuration error.
func (s *FileStore) Load(_ context.Context) (SyncState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return Default(s.clock.Now()), nil
		}
		return SyncState{}, syncerrors.StateInvalid(s.path, err)
	}

	var st SyncState
	if err := json.Unmarshal(data, &st); err != nil {
		return SyncState{}, syncerrors.StateInvalid(s.path, err)
	}
	if err := st.Validate(); err != nil {
		return SyncState{}, syncerrors.StateInvalid(s.path, err)
	}
	return st, nil
}

// Save writes the record atomically: a reader sees either the old or the new document.
func (s *FileStore) Save(_ context.Context, st SyncState) error {
	if err := st.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return syncerrors.InternalError("failed to marshal state", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return syncerrors.FilesystemError("create state directory", err).WithContext("path", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return syncerrors.FilesystemError("create temporary state file", err).WithContext("path", dir)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return syncerrors.FilesystemError("write state", err).WithContext("path", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return syncerrors.FilesystemError("sync state", err).WithContext("path", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return syncerrors.FilesystemError("close state", err).WithContext("path", tmpPath)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return syncerrors.FilesystemError("chmod state", err).WithContext("path", tmpPath)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return syncerrors.FilesystemError("replace state", err).WithContext("path", s.path)
	}
	return nil
}

// Update performs load, fn, save while holding the update lock.
func (s *FileStore) Update(ctx context.Context, fn func(SyncState) (SyncState, error)) (SyncState, error) {
	lock, err := AcquireLock(ctx, s.UpdateLockPath())
	if err != nil {
		return SyncState{}, err
	}
	defer func() { _ = lock.Unlock() }()

	current, err := s.Load(ctx)
	if err != nil {
		return SyncState{}, err
	}
	next, err := fn(current)
	if err != nil {
		return SyncState{}, err
	}
	if err := s.Save(ctx, next); err != nil {
		return SyncState{}, err
	}
	return next, nil
}
