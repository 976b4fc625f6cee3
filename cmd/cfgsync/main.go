package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/cfgsync/cmd/cfgsync/commands"
	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/version"
)

// exitRequest carries a kong-initiated exit (help, version) out of the parser.
type exitRequest int

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			req, ok := r.(exitRequest)
			if !ok {
				panic(r)
			}
			code = int(req)
		}
	}()

	cli := &commands.CLI{}
	cli.SetLogOutput(stderr)

	parser, err := kong.New(cli,
		kong.Name("cfgsync"),
		kong.Description("Pull-based configuration distribution: publish a configuration source, "+
			"and let every node poll, pull and activate it."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Writers(stdout, stderr),
		kong.Exit(func(c int) { panic(exitRequest(c)) }),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cfgsync: %v\n", err)
		return 10
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cfgsync: error: %v\n", err)
		return 2
	}

	global := &commands.Global{Logger: slog.Default(), Stdout: stdout, Stderr: stderr}
	if err := kctx.Run(global, cli); err != nil {
		adapter := syncerrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).WithOutput(stderr)
		return adapter.Handle(err)
	}
	return 0
}
