// Package activate applies an unpacked configuration tree by running an external command.
package activate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/logfields"
	"git.home.luguber.info/inful/cfgsync/internal/manifest"
)

// Placeholders substituted in every command argument.
const (
	PlaceholderConfiguration = "{configuration}"
	PlaceholderPath          = "{path}"
)

// DefaultCommand switches the running system to the selected flake output.
var DefaultCommand = []string{"nixos-rebuild", "switch", "--flake", ".#" + PlaceholderConfiguration}

// Activator applies the configuration named configuration found under dir.
type Activator interface {
	Activate(ctx context.Context, dir, configuration string) error
}

// Command runs an argv template inside the configuration directory.
type Command struct {
	argv    []string
	marker  manifest.Marker
	timeout time.Duration
	stdout  io.Writer
	stderr  io.Writer
}

// Option configures a Command.
type Option func(*Command)

// WithTimeout bounds each activation. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(c *Command) { c.timeout = d } }

// WithOutput redirects the command's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Command) { c.stdout, c.stderr = stdout, stderr }
}

// NewCommand returns an activator for argv (DefaultCommand when empty).
func NewCommand(argv []string, marker manifest.Marker, opts ...Option) *Command {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	c := &Command{
		argv:   append([]string(nil), argv...),
		marker: marker,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Args renders the argv template for one activation.
func (c *Command) Args(dir, configuration string) []string {
	r := strings.NewReplacer(PlaceholderConfiguration, configuration, PlaceholderPath, dir)
	out := make([]string, len(c.argv))
	for i, a := range c.argv {
		out[i] = r.Replace(a)
	}
	return out
}

// Activate verifies the manifest marker, then runs the command with dir as working directory.
func (c *Command) Activate(ctx context.Context, dir, configuration string) error {
	if configuration == "" {
		return syncerrors.ConfigRequired("configuration")
	}
	if err := c.marker.Verify(dir); err != nil {
		return err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.Args(dir, configuration)
	// #nosec G204 - argv comes from operator configuration
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Stdout = c.stdout
	tail := &tailWriter{max: stderrTailBytes}
	cmd.Stderr = io.MultiWriter(c.stderr, tail)

	start := time.Now()
	slog.Info("Activating configuration",
		logfields.Configuration(configuration),
		logfields.Path(dir),
		slog.String("command", strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s: %w", c.timeout, err)
		}
		if msg := lastLine(tail.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return syncerrors.ActivationFailed(configuration, err)
	}

	slog.Info("Configuration activated", logfields.Configuration(configuration), logfields.Since(start))
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// stderrTailBytes bounds the stderr kept for the failure message.
const stderrTailBytes = 4 << 10

// tailWriter keeps only the last max bytes written to it.
type tailWriter struct {
	max int
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n >= w.max {
		w.buf = append(w.buf[:0], p[n-w.max:]...)
		return n, nil
	}
	if over := len(w.buf) + n - w.max; over > 0 {
		w.buf = append(w.buf[:0], w.buf[over:]...)
	}
	w.buf = append(w.buf, p...)
	return n, nil
}

func (w *tailWriter) String() string { return string(w.buf) }
