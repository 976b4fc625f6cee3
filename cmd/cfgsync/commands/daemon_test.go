package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cfgsync/internal/config"
	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/state"
)

func daemonSettings(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("data_dir: " + t.TempDir() + "\nmetrics:\n  listen: 127.0.0.1:0\n"))
	require.NoError(t, err)
	return cfg
}

func TestRunDaemon_StopsOnCancel(t *testing.T) {
	cfg := daemonSettings(t)
	lockPath := cfg.StatePath() + ".daemon.lock"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunDaemon(ctx, cfg, &Global{}) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(lockPath)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, err := os.Stat(filepath.Join(cfg.DataDir, "journal.db"))
	require.NoError(t, err)

	// the instance lock is released on exit
	lock, err := state.TryLock(lockPath)
	require.NoError(t, err)
	require.NoError(t, lock.Unlock())
}

func TestRunDaemon_SecondInstanceFails(t *testing.T) {
	cfg := daemonSettings(t)
	lockPath := cfg.StatePath() + ".daemon.lock"
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0o755))

	held, err := state.TryLock(lockPath)
	require.NoError(t, err)
	defer func() { _ = held.Unlock() }()

	err = RunDaemon(context.Background(), cfg, &Global{})
	require.Error(t, err)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryDaemon))
}

func TestRunDaemon_UnreachableEventsBrokerIsNotFatal(t *testing.T) {
	cfg := daemonSettings(t)
	cfg.Events.NATSURL = "nats://127.0.0.1:1"
	cfg.Metrics.Listen = ""

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, RunDaemon(ctx, cfg, &Global{}))
}

func TestParseRemote(t *testing.T) {
	u, err := parseRemote("git+https://example.com/fleet.git#main")
	require.NoError(t, err)
	require.Equal(t, "git+https", u.Scheme)
	require.Equal(t, "main", u.Fragment)

	_, err = parseRemote("relative/path")
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryValidation))
}
