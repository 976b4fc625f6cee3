package commands

import (
	"context"
)

// PushCmd implements the 'push' command.
type PushCmd struct {
	Remote string `required:"" help:"Remote URL to upload to"`
	Src    string `required:"" type:"existingdir" help:"Configuration source directory"`
}

func (p *PushCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.Settings()
	if err != nil {
		return err
	}
	remote, err := parseRemote(p.Remote)
	if err != nil {
		return err
	}
	svc, err := newService(cfg, g)
	if err != nil {
		return err
	}
	return svc.Push(context.Background(), p.Src, remote)
}
