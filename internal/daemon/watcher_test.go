package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cfgsync/internal/state"
)

func TestStateWatcher_WakesOnIntentChangeOnly(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	store := state.NewFileStore(filepath.Join(t.TempDir(), "state.json"), clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial := state.Default(epoch).WithRemote(mustParse(t, remoteURL), false).WithConfiguration("nodeA", false)
	require.NoError(t, store.Save(ctx, initial))

	sw, err := NewStateWatcher(store.Path())
	require.NoError(t, err)
	sw.debounceTime = 20 * time.Millisecond
	require.NoError(t, sw.Start(ctx))
	defer func() { _ = sw.Stop() }()

	// a tag-only write is what the daemon itself does after activating
	require.NoError(t, store.Save(ctx, initial.WithReconfiguration("v2", epoch.Add(time.Hour))))
	require.Never(t, func() bool {
		select {
		case <-sw.Wake():
			return true
		default:
			return false
		}
	}, 300*time.Millisecond, 20*time.Millisecond)

	_, err = store.Update(ctx, func(st state.SyncState) (state.SyncState, error) {
		return st.WithRemote(mustParse(t, "s3://configs/next.tar.zst"), false), nil
	})
	require.NoError(t, err)

	select {
	case <-sw.Wake():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not signal remote change")
	}
}

func TestStateWatcher_FileCreatedLater(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not-yet")
	clock := clockwork.NewFakeClockAt(epoch)
	store := state.NewFileStore(filepath.Join(dir, "state.json"), clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw, err := NewStateWatcher(store.Path())
	require.NoError(t, err)
	sw.debounceTime = 20 * time.Millisecond
	require.NoError(t, sw.Start(ctx))
	defer func() { _ = sw.Stop() }()

	require.NoError(t, store.Save(ctx, state.Default(epoch).WithConfiguration("nodeB", false)))

	select {
	case <-sw.Wake():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not signal state creation")
	}
}

func TestStateWatcher_StopIsIdempotent(t *testing.T) {
	sw, err := NewStateWatcher(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	require.NoError(t, sw.Start(context.Background()))
	require.NoError(t, sw.Stop())
	require.NoError(t, sw.Stop())
}
