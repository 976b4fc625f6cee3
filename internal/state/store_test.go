package state

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

func newTestStore(t *testing.T) (*FileStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewFileStore(filepath.Join(t.TempDir(), "nested", "state.json"), clock), clock
}

func TestFileStore_LoadMissingYieldsDefaults(t *testing.T) {
	store, clock := newTestStore(t)

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, st.Remote)
	require.True(t, st.LastReconfiguration.Equal(clock.Now()))
	require.Equal(t, DefaultMinSleepSecs, st.MinSleepSecs)

	_, err = os.Stat(store.Path())
	require.True(t, os.IsNotExist(err), "load must not create the document")
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	st := Default(clock.Now()).
		WithRemote(mustURL(t, "s3://bucket/cfg.tar.zst"), false).
		WithConfiguration("nodeA", false).
		WithReconfiguration("\"abc\"", clock.Now().Add(time.Hour))

	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, st.Remote.String(), got.Remote.String())
	require.Equal(t, st.Configuration, got.Configuration)
	require.Equal(t, st.LastVersionTag, got.LastVersionTag)
	require.True(t, st.LastReconfiguration.Equal(got.LastReconfiguration))
	require.Equal(t, st.MaxSleepSecs, got.MaxSleepSecs)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, Default(clock.Now())))
	}

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "state.json", entries[0].Name())
}

func TestFileStore_SaveRejectsInvalid(t *testing.T) {
	store, clock := newTestStore(t)
	st := Default(clock.Now())
	st.MinSleepSecs = st.MaxSleepSecs + 1

	require.Error(t, store.Save(context.Background(), st))
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryConfig))
}

func TestFileStore_LoadInconsistentBounds(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	doc := `{"remote":null,"configuration":null,"last_reconfiguration":"2024-01-01T00:00:00Z","last_etag":"","min_sleep_secs":100,"max_sleep_secs":10}`
	require.NoError(t, os.WriteFile(store.Path(), []byte(doc), 0o644))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryConfig))
}

func TestFileStore_LoadUnreadable(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	store, _ := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{}"), 0o000))

	_, err := store.Load(context.Background())
	require.Error(t, err)
}

func TestFileStore_UpdatePreservesOtherFields(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	initial := Default(clock.Now()).WithConfiguration("nodeA", false)
	initial.MinSleepSecs = 7
	require.NoError(t, store.Save(ctx, initial))

	_, err := store.Update(ctx, func(st SyncState) (SyncState, error) {
		return st.WithRemote(mustURL(t, "s3://b/k"), false), nil
	})
	require.NoError(t, err)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "s3://b/k", got.Remote.String())
	require.Equal(t, "nodeA", got.Configuration)
	require.Equal(t, uint64(7), got.MinSleepSecs)
}

func TestFileStore_UpdateErrorDoesNotSave(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Default(clock.Now())))

	_, err := store.Update(ctx, func(st SyncState) (SyncState, error) {
		return st, syncerrors.ConfigRequired("remote")
	})
	require.Error(t, err)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got.Remote)
}

func TestFileStore_ConcurrentUpdatesSerialize(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Default(clock.Now())))

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, func(st SyncState) (SyncState, error) {
				st.MinSleepSecs++
				return st, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, DefaultMinSleepSecs+n, got.MinSleepSecs)
}

func TestTryLockContention(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are a no-op on this platform")
	}
	path := filepath.Join(t.TempDir(), "state.json.daemon.lock")

	first, err := TryLock(path)
	require.NoError(t, err)

	_, err = TryLock(path)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Unlock())

	second, err := TryLock(path)
	require.NoError(t, err)
	require.NoError(t, second.Unlock())
}

func TestAcquireLockHonoursContext(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are a no-op on this platform")
	}
	path := filepath.Join(t.TempDir(), "state.json.lock")

	held, err := TryLock(path)
	require.NoError(t, err)
	defer func() { _ = held.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	_, err = AcquireLock(ctx, path)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
