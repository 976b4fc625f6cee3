package commands

import (
	"context"
	"fmt"
)

// ConfigCmd implements the 'config' command.
type ConfigCmd struct{}

func (c *ConfigCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.Settings()
	if err != nil {
		return err
	}
	st, err := newStore(cfg).Load(context.Background())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.stdout(), st.String())
	return err
}
