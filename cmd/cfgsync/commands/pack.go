package commands

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/cfgsync/internal/logfields"
)

// PackCmd implements the 'pack' command.
type PackCmd struct {
	Src string `required:"" type:"existingdir" help:"Configuration source directory"`
	Dst string `required:"" type:"path" help:"Archive file to create; must not exist"`
}

func (p *PackCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.Settings()
	if err != nil {
		return err
	}
	svc, err := newService(cfg, g)
	if err != nil {
		return err
	}
	if err := svc.Pack(context.Background(), p.Src, p.Dst); err != nil {
		return err
	}
	slog.Info("Wrote archive", logfields.Path(p.Dst))
	return nil
}
