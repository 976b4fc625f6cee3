package commands

import (
	"context"
	"log/slog"
	"net/url"

	"git.home.luguber.info/inful/cfgsync/internal/logfields"
)

// PullCmd implements the 'pull' command.
type PullCmd struct {
	Remote string `help:"Remote URL; defaults to the persisted remote"`
	Dst    string `required:"" type:"path" help:"Directory to unpack into"`
}

func (p *PullCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.Settings()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var remote *url.URL
	if p.Remote != "" {
		if remote, err = parseRemote(p.Remote); err != nil {
			return err
		}
	} else {
		st, err := newStore(cfg).Load(ctx)
		if err != nil {
			return err
		}
		if remote, err = st.RequireRemote(); err != nil {
			return err
		}
	}

	svc, err := newService(cfg, g)
	if err != nil {
		return err
	}
	if err := svc.Pull(ctx, remote, p.Dst); err != nil {
		return err
	}
	slog.Info("Pulled configuration", logfields.Remote(remote.Redacted()), logfields.Path(p.Dst))
	return nil
}
