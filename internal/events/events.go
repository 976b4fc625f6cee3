// Package events publishes daemon cycle outcomes to a message bus.
package events

import (
	"context"
	"time"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "cfgsync.events"

// CycleEvent is the JSON payload published after every daemon cycle.
type CycleEvent struct {
	CycleID       string    `json:"cycle_id"`
	Host          string    `json:"host,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Outcome       string    `json:"outcome"`
	Remote        string    `json:"remote,omitempty"`
	Configuration string    `json:"configuration,omitempty"`
	PreviousTag   string    `json:"previous_tag,omitempty"`
	VersionTag    string    `json:"version_tag,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	Error         string    `json:"error,omitempty"`
}

// Publisher delivers cycle events.
type Publisher interface {
	Publish(ctx context.Context, ev CycleEvent) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, CycleEvent) error { return nil }
func (Noop) Close() error                              { return nil }
