package commands

import (
	"context"
	"log/slog"
	"strings"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/logfields"
	"git.home.luguber.info/inful/cfgsync/internal/state"
)

// SetCmd groups the state mutation subcommands.
type SetCmd struct {
	Remote        SetRemoteCmd        `cmd:"" help:"Set the remote the daemon polls"`
	Configuration SetConfigurationCmd `cmd:"" help:"Set the configuration the daemon activates"`
}

// SetRemoteCmd implements 'set remote'.
type SetRemoteCmd struct {
	URL  string `arg:"" name:"url" help:"Remote URL"`
	Init bool   `help:"Only set when no remote is persisted yet"`
}

func (s *SetRemoteCmd) Run(_ *Global, root *CLI) error {
	remote, err := parseRemote(s.URL)
	if err != nil {
		return err
	}
	st, err := updateState(root, func(st state.SyncState) (state.SyncState, error) {
		return st.WithRemote(remote, s.Init), nil
	})
	if err != nil {
		return err
	}
	slog.Info("Remote set", logfields.Remote(st.Remote.Redacted()))
	return nil
}

// SetConfigurationCmd implements 'set configuration'.
type SetConfigurationCmd struct {
	ID   string `arg:"" name:"id" help:"Configuration identifier"`
	Init bool   `help:"Only set when no configuration is persisted yet"`
}

func (s *SetConfigurationCmd) Run(_ *Global, root *CLI) error {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return syncerrors.ValidationFailed("configuration", "must not be empty")
	}
	st, err := updateState(root, func(st state.SyncState) (state.SyncState, error) {
		return st.WithConfiguration(id, s.Init), nil
	})
	if err != nil {
		return err
	}
	slog.Info("Configuration set", logfields.Configuration(st.Configuration))
	return nil
}

func updateState(root *CLI, fn func(state.SyncState) (state.SyncState, error)) (state.SyncState, error) {
	cfg, err := root.Settings()
	if err != nil {
		return state.SyncState{}, err
	}
	return newStore(cfg).Update(context.Background(), fn)
}
