package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyCycleID       = "cycle_id"
	KeyRemote        = "remote"
	KeyScheme        = "scheme"
	KeyVersionTag    = "version_tag"
	KeyPreviousTag   = "previous_tag"
	KeyConfiguration = "configuration"
	KeyOutcome       = "outcome"
	KeyStage         = "stage"
	KeyPath          = "path"
	KeySleep         = "sleep"
	KeyDurationMS    = "duration_ms"
	KeyError         = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func CycleID(id string) slog.Attr         { return slog.String(KeyCycleID, id) }
func Remote(r string) slog.Attr           { return slog.String(KeyRemote, r) }
func Scheme(s string) slog.Attr           { return slog.String(KeyScheme, s) }
func VersionTag(tag string) slog.Attr     { return slog.String(KeyVersionTag, tag) }
func PreviousTag(tag string) slog.Attr    { return slog.String(KeyPreviousTag, tag) }
func Configuration(c string) slog.Attr    { return slog.String(KeyConfiguration, c) }
func Outcome(o string) slog.Attr          { return slog.String(KeyOutcome, o) }
func Stage(name string) slog.Attr         { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr             { return slog.String(KeyPath, p) }
func Sleep(d time.Duration) slog.Attr     { return slog.String(KeySleep, d.String()) }
func DurationMS(ms float64) slog.Attr     { return slog.Float64(KeyDurationMS, ms) }
func Since(start time.Time) slog.Attr     { return DurationMS(float64(time.Since(start).Microseconds()) / 1000) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
