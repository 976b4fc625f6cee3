// Package journal keeps a local history of daemon cycles.
package journal

import (
	"context"
	"time"
)

// Entry describes one finished daemon cycle.
type Entry struct {
	ID            int64         `json:"id"`
	CycleID       string        `json:"cycle_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Remote        string        `json:"remote,omitempty"`
	Configuration string        `json:"configuration,omitempty"`
	PreviousTag   string        `json:"previous_tag,omitempty"`
	VersionTag    string        `json:"version_tag,omitempty"`
	Outcome       string        `json:"outcome"`
	Error         string        `json:"error,omitempty"`
}

// Journal records cycles and returns the most recent ones.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Noop discards entries.
type Noop struct{}

func (Noop) Record(context.Context, Entry) error          { return nil }
func (Noop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Noop) Close() error                                 { return nil }
