package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/journal"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int  `short:"n" default:"20" help:"Number of cycles to show"`
	JSON  bool `help:"Print entries as JSON lines"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.Settings()
	if err != nil {
		return err
	}
	path := cfg.JournalPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			_, err = fmt.Fprintln(g.stdout(), "no cycles recorded")
			return err
		}
		return syncerrors.FilesystemError("stat journal", err).WithContext("path", path)
	}

	j, err := journal.NewSQLiteJournal(path)
	if err != nil {
		return syncerrors.FilesystemError("open journal", err).WithContext("path", path)
	}
	defer func() { _ = j.Close() }()

	entries, err := j.Recent(context.Background(), h.Limit)
	if err != nil {
		return syncerrors.FilesystemError("read journal", err).WithContext("path", path)
	}
	if h.JSON {
		enc := json.NewEncoder(g.stdout())
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	return printHistory(g, entries)
}

func printHistory(g *Global, entries []journal.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(g.stdout(), "no cycles recorded")
		return err
	}
	tw := tabwriter.NewWriter(g.stdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tOUTCOME\tDURATION\tVERSION\tCONFIGURATION\tERROR")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.RFC3339),
			e.Outcome,
			e.Duration.Round(time.Millisecond),
			dash(e.VersionTag),
			dash(e.Configuration),
			e.Error)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
