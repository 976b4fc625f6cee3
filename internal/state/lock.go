package state

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = stderrors.New("lock held by another process")

const lockPollInterval = 50 * time.Millisecond

// Lock is an advisory, process-exclusive lock on a file.
type Lock struct {
	f *os.File
}

func openLockFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, syncerrors.FilesystemError("create lock directory", err).WithContext("path", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, syncerrors.FilesystemError("open lock file", err).WithContext("path", path)
	}
	return f, nil
}

// TryLock takes the lock without waiting. It returns ErrLocked when the lock is held elsewhere.
func TryLock(path string) (*Lock, error) {
	f, err := openLockFile(path)
	if err != nil {
		return nil, err
	}
	if err := tryLockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// AcquireLock waits for the lock until ctx is done.
func AcquireLock(ctx context.Context, path string) (*Lock, error) {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		l, err := TryLock(path)
		if err == nil {
			return l, nil
		}
		if !stderrors.Is(err, ErrLocked) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Unlock releases the lock. The lock file itself is left in place.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
