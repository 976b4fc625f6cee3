package commands

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/cfgsync/internal/logfields"
)

// ActivateCmd implements the 'activate' command.
type ActivateCmd struct {
	Src           string `required:"" type:"existingdir" help:"Configuration source directory"`
	Configuration string `help:"Configuration to activate; defaults to the persisted one"`
}

func (a *ActivateCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.Settings()
	if err != nil {
		return err
	}
	ctx := context.Background()

	configuration := a.Configuration
	if configuration == "" {
		st, err := newStore(cfg).Load(ctx)
		if err != nil {
			return err
		}
		if configuration, err = st.RequireConfiguration(); err != nil {
			return err
		}
	}

	svc, err := newService(cfg, g)
	if err != nil {
		return err
	}
	if err := svc.Activate(ctx, a.Src, configuration); err != nil {
		return err
	}
	slog.Info("Activated configuration", logfields.Configuration(configuration), logfields.Path(a.Src))
	return nil
}
