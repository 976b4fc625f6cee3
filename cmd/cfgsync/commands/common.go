package commands

import (
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/cfgsync/internal/activate"
	"git.home.luguber.info/inful/cfgsync/internal/config"
	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/manifest"
	"git.home.luguber.info/inful/cfgsync/internal/state"
	"git.home.luguber.info/inful/cfgsync/internal/syncer"
	"git.home.luguber.info/inful/cfgsync/internal/transport"
)

// Global carries process-wide handles shared by every command.
type Global struct {
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

func (g *Global) stdout() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Global) stderr() io.Writer {
	if g == nil || g.Stderr == nil {
		return os.Stderr
	}
	return g.Stderr
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Agent settings file" env:"CFGSYNC_CONFIG" type:"path"`
	State   string           `help:"Override the sync state document path" env:"CFGSYNC_STATE" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Pull     PullCmd     `cmd:"" help:"Download and unpack a configuration source"`
	Push     PushCmd     `cmd:"" help:"Pack a configuration source and upload it"`
	Pack     PackCmd     `cmd:"" help:"Write the archive of a configuration source to a local file"`
	Set      SetCmd      `cmd:"" help:"Change the persisted remote or configuration"`
	Show     ConfigCmd   `cmd:"" name:"config" help:"Print the persisted sync state"`
	Activate ActivateCmd `cmd:"" help:"Activate a configuration from a local source directory"`
	Daemon   DaemonCmd   `cmd:"" help:"Poll the remote and activate new versions"`
	History  HistoryCmd  `cmd:"" help:"Show recently journaled daemon cycles"`

	settings *config.Config
	stderr   io.Writer
}

// AfterApply runs after flag parsing; it installs a logger honoring --verbose until
// the settings file has been read.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	installLogger(c.logOutput(), config.LogLevelInfo, config.LogFormatText, c.Verbose)
	return nil
}

// SetLogOutput redirects log output, which defaults to stderr.
func (c *CLI) SetLogOutput(w io.Writer) { c.stderr = w }

func (c *CLI) logOutput() io.Writer {
	if c.stderr == nil {
		return os.Stderr
	}
	return c.stderr
}

// Settings loads the agent settings once and reinstalls the logger from them.
func (c *CLI) Settings() (*config.Config, error) {
	if c.settings != nil {
		return c.settings, nil
	}
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if c.State != "" {
		cfg.StateFile = c.State
	}
	installLogger(c.logOutput(), cfg.Log.Level, cfg.Log.Format, c.Verbose)
	c.settings = cfg
	return cfg, nil
}

func installLogger(w io.Writer, level config.LogLevel, format config.LogFormat, verbose bool) {
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newStore(cfg *config.Config) *state.FileStore {
	return state.NewFileStore(cfg.StatePath(), nil)
}

// newService assembles the sync service from settings. Activation output goes to
// the command's own stdout and stderr.
func newService(cfg *config.Config, g *Global) (*syncer.Service, error) {
	registry, err := transport.NewDefaultRegistry(cfg.TransportOptions())
	if err != nil {
		return nil, err
	}
	marker := manifest.Marker(cfg.Manifest)
	activator := activate.NewCommand(cfg.Activation.Command, marker,
		activate.WithTimeout(cfg.Activation.Timeout),
		activate.WithOutput(g.stdout(), g.stderr()))
	return syncer.New(registry, nil, activator, marker), nil
}

// parseRemote accepts any absolute URL; scheme support is checked when the remote is used.
func parseRemote(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, syncerrors.ValidationFailed("remote", err.Error())
	}
	if u.Scheme == "" {
		return nil, syncerrors.ValidationFailed("remote", "missing scheme in "+raw)
	}
	return u, nil
}
