package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"git.home.luguber.info/inful/cfgsync/internal/config"
	"git.home.luguber.info/inful/cfgsync/internal/daemon"
	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/events"
	"git.home.luguber.info/inful/cfgsync/internal/journal"
	"git.home.luguber.info/inful/cfgsync/internal/logfields"
	"git.home.luguber.info/inful/cfgsync/internal/metrics"
	"git.home.luguber.info/inful/cfgsync/internal/version"
)

const shutdownTimeout = 10 * time.Second

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Listen string `help:"Serve /metrics and /healthz on this address (overrides metrics.listen)"`
}

func (c *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.Settings()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Metrics.Listen = c.Listen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunDaemon(ctx, cfg, g)
}

// RunDaemon runs the polling loop and its side services until ctx is canceled or the
// loop fails fatally.
func RunDaemon(ctx context.Context, cfg *config.Config, g *Global) error {
	slog.Info("Starting daemon mode",
		slog.String("version", version.String()),
		slog.String("data_dir", cfg.DataDir))

	store := newStore(cfg)
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0o755); err != nil {
		return syncerrors.FilesystemError("create state directory", err).WithContext("path", store.Path())
	}
	lock, err := daemon.AcquireInstanceLock(store.DaemonLockPath())
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	svc, err := newService(cfg, g)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()
	opts := []daemon.Option{
		daemon.WithScratchDir(cfg.ScratchDir()),
		daemon.WithStateFailureLimit(cfg.StateFailureLimit()),
		daemon.WithRecorder(metrics.NewPrometheusRecorder(registry)),
	}

	if j := openJournal(cfg); j != nil {
		defer func() { _ = j.Close() }()
		opts = append(opts, daemon.WithJournal(j))
	}
	if p := openPublisher(cfg); p != nil {
		defer func() { _ = p.Close() }()
		opts = append(opts, daemon.WithPublisher(p))
	}

	if cfg.WatchState() {
		watcher, err := daemon.NewStateWatcher(store.Path())
		if err != nil {
			return syncerrors.DaemonError("state watcher", err)
		}
		if err := watcher.Start(ctx); err != nil {
			_ = watcher.Stop()
			return syncerrors.DaemonError("state watcher", err)
		}
		defer func() { _ = watcher.Stop() }()
		opts = append(opts, daemon.WithWake(watcher.Wake()))
	}

	if cfg.JanitorEnabled() {
		janitor, err := daemon.NewJanitor(cfg.ScratchDir(), cfg.JanitorInterval(), cfg.ScratchMaxAge(), nil)
		if err != nil {
			return syncerrors.DaemonError("scratch janitor", err)
		}
		janitor.Start()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if err := janitor.Stop(stopCtx); err != nil {
				slog.Warn("Failed to stop scratch janitor", logfields.Error(err))
			}
		}()
	}

	d := daemon.New(store, svc, opts...)

	if cfg.Metrics.Listen != "" {
		srv := daemon.NewHTTPServer(cfg.Metrics.Listen, d, registry)
		if err := srv.Start(ctx); err != nil {
			return syncerrors.DaemonError("http listener", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if err := srv.Stop(stopCtx); err != nil {
				slog.Warn("Failed to stop HTTP server", logfields.Error(err))
			}
		}()
	}

	if err := d.Run(ctx); err != nil {
		return err
	}
	slog.Info("Daemon stopped successfully")
	return nil
}

// openJournal returns nil when the journal is disabled or cannot be opened; the
// daemon keeps running without it.
func openJournal(cfg *config.Config) journal.Journal {
	if !cfg.JournalEnabled() {
		return nil
	}
	path := cfg.JournalPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Warn("Cycle journal disabled", logfields.Path(path), logfields.Error(err))
		return nil
	}
	j, err := journal.NewSQLiteJournal(path)
	if err != nil {
		slog.Warn("Cycle journal disabled", logfields.Path(path), logfields.Error(err))
		return nil
	}
	return j
}

func openPublisher(cfg *config.Config) events.Publisher {
	if cfg.Events.NATSURL == "" {
		return nil
	}
	p, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
	if err != nil {
		slog.Warn("Cycle events disabled", logfields.Error(err))
		return nil
	}
	return p
}
