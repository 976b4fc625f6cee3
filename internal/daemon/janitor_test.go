package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cfgsync/internal/workspace"
)

func makeScratch(t *testing.T, root, name string, age time.Duration) string {
	t.Helper()
	p := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(p, "etc"), 0o750))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(p, mtime, mtime))
	return p
}

func TestJanitor_RunOnce(t *testing.T) {
	root := t.TempDir()
	stale := makeScratch(t, root, workspace.Prefix+"stale", 0)
	other := makeScratch(t, root, "unrelated", 0)

	clock := clockwork.NewFakeClockAt(time.Now().Add(48 * time.Hour))
	j, err := NewJanitor(root, time.Hour, 24*time.Hour, clock)
	require.NoError(t, err)
	defer func() { _ = j.Stop(context.Background()) }()

	removed := j.RunOnce()
	require.Equal(t, []string{stale}, removed)
	require.NoDirExists(t, stale)
	require.DirExists(t, other)
}

func TestJanitor_StartSweepsImmediately(t *testing.T) {
	root := t.TempDir()
	stale := makeScratch(t, root, workspace.Prefix+"20240101-000000-1", 72*time.Hour)
	fresh := makeScratch(t, root, workspace.Prefix+"20240103-000000-2", time.Minute)

	j, err := NewJanitor(root, time.Hour, 24*time.Hour, nil)
	require.NoError(t, err)
	j.Start()
	defer func() { _ = j.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond)
	require.DirExists(t, fresh)
}

func TestJanitor_MissingRootIsFine(t *testing.T) {
	j, err := NewJanitor(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Hour, nil)
	require.NoError(t, err)
	defer func() { _ = j.Stop(context.Background()) }()
	require.Empty(t, j.RunOnce())
}
