// Package state holds the node's single persisted sync record and the file-backed
// store that loads and saves it.
package state

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// Defaults for the backoff tuning fields. They also fill fields missing from older state files.
const (
	DefaultMinSleepSecs       uint64 = 15
	DefaultMaxSleepSecs       uint64 = 120
	DefaultMaxSleepAfterHours uint64 = 24
)

// SyncState is the persisted record: where to pull from, what to activate, and what was
// last activated. An empty Configuration means unset.
type SyncState struct {
	Remote              *url.URL
	Configuration       string
	LastVersionTag      string
	LastReconfiguration time.Time
	MinSleepSecs        uint64
	MaxSleepSecs        uint64
	MaxSleepAfterHours  uint64
}

// Default returns a fresh record as created on a node that has never synced.
func Default(now time.Time) SyncState {
	return SyncState{
		LastReconfiguration: now.UTC(),
		MinSleepSecs:        DefaultMinSleepSecs,
		MaxSleepSecs:        DefaultMaxSleepSecs,
		MaxSleepAfterHours:  DefaultMaxSleepAfterHours,
	}
}

// RequireRemote returns the remote or a configuration error when it is not set.
func (s SyncState) RequireRemote() (*url.URL, error) {
	if s.Remote == nil {
		return nil, syncerrors.ConfigRequired("remote")
	}
	return s.Remote, nil
}

// RequireConfiguration returns the configuration or a configuration error when it is not set.
func (s SyncState) RequireConfiguration() (string, error) {
	if s.Configuration == "" {
		return "", syncerrors.ConfigRequired("configuration")
	}
	return s.Configuration, nil
}

// WithRemote returns a copy with the remote replaced. With init set, an existing remote is kept.
func (s SyncState) WithRemote(remote *url.URL, init bool) SyncState {
	if init && s.Remote != nil {
		return s
	}
	u := *remote
	s.Remote = &u
	return s
}

// WithConfiguration returns a copy with the configuration replaced. With init set, an
// existing configuration is kept.
func (s SyncState) WithConfiguration(configuration string, init bool) SyncState {
	if init && s.Configuration != "" {
		return s
	}
	s.Configuration = configuration
	return s
}

// WithReconfiguration records a successful activation of tag at the given time.
func (s SyncState) WithReconfiguration(tag string, at time.Time) SyncState {
	s.LastVersionTag = tag
	s.LastReconfiguration = at.UTC().Round(0)
	return s
}

// Validate checks the record's invariants.
func (s SyncState) Validate() error {
	if s.MinSleepSecs > s.MaxSleepSecs {
		return syncerrors.ConfigInvalid("min_sleep_secs",
			fmt.Sprintf("min_sleep_secs (%d) exceeds max_sleep_secs (%d)", s.MinSleepSecs, s.MaxSleepSecs))
	}
	return nil
}

// wireState is the on-disk JSON shape. Pointer tuning fields distinguish "absent" from zero.
type wireState struct {
	Remote              *string   `json:"remote"`
	Configuration       *string   `json:"configuration"`
	LastReconfiguration time.Time `json:"last_reconfiguration"`
	LastETag            string    `json:"last_etag"`
	MinSleepSecs        *uint64   `json:"min_sleep_secs,omitempty"`
	MaxSleepSecs        *uint64   `json:"max_sleep_secs,omitempty"`
	MaxSleepAfterHours  *uint64   `json:"max_sleep_after_hours,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s SyncState) MarshalJSON() ([]byte, error) {
	w := wireState{
		LastReconfiguration: s.LastReconfiguration.UTC(),
		LastETag:            s.LastVersionTag,
		MinSleepSecs:        &s.MinSleepSecs,
		MaxSleepSecs:        &s.MaxSleepSecs,
		MaxSleepAfterHours:  &s.MaxSleepAfterHours,
	}
	if s.Remote != nil {
		r := s.Remote.String()
		w.Remote = &r
	}
	if s.Configuration != "" {
		c := s.Configuration
		w.Configuration = &c
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler, filling defaults for absent tuning fields.
func (s *SyncState) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := SyncState{
		LastReconfiguration: w.LastReconfiguration.UTC(),
		LastVersionTag:      w.LastETag,
		MinSleepSecs:        valueOr(w.MinSleepSecs, DefaultMinSleepSecs),
		MaxSleepSecs:        valueOr(w.MaxSleepSecs, DefaultMaxSleepSecs),
		MaxSleepAfterHours:  valueOr(w.MaxSleepAfterHours, DefaultMaxSleepAfterHours),
	}
	if w.Remote != nil && *w.Remote != "" {
		u, err := url.Parse(*w.Remote)
		if err != nil {
			return fmt.Errorf("remote: %w", err)
		}
		out.Remote = u
	}
	if w.Configuration != nil {
		out.Configuration = *w.Configuration
	}

	*s = out
	return nil
}

// String renders the record as indented JSON, the format shown by the config command.
func (s SyncState) String() string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Sprintf("<invalid state: %v>", err)
	}
	return string(b)
}

func valueOr(v *uint64, def uint64) uint64 {
	if v == nil {
		return def
	}
	return *v
}
