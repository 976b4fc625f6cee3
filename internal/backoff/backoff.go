// Package backoff computes the daemon's adaptive, jittered poll interval and performs
// the interruptible sleep between cycles.
//
// The interval starts near min_sleep_secs right after a reconfiguration and grows
// linearly toward max_sleep_secs over max_sleep_after_hours, after which it plateaus.
// A uniform draw in [0.5, 1.5) of the average spreads polls across nodes.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"

	"git.home.luguber.info/inful/cfgsync/internal/state"
)

const (
	minAverageSecs = 0.01
	maxAverageSecs = 3600
	// maxSleepSecs keeps the result representable as a time.Duration.
	maxSleepSecs = float64(math.MaxInt64 / int64(time.Second))
)

// Source supplies uniform draws in [0, 1).
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource returns a Source backed by the runtime's random generator.
func DefaultSource() Source { return globalSource{} }

// SleepDuration returns the wait before the next check for st at time now.
// The result is whole seconds, never below MinSleepSecs and never above 1.5x MaxSleepSecs.
func SleepDuration(st state.SyncState, now time.Time, src Source) time.Duration {
	if src == nil {
		src = DefaultSource()
	}

	elapsed := now.Sub(st.LastReconfiguration)
	if elapsed < time.Second {
		elapsed = time.Second
	}

	ratio := 1.0
	if horizon := float64(st.MaxSleepAfterHours) * 3600; horizon > 0 {
		ratio = clamp(elapsed.Seconds()/horizon, 0, 1)
	}

	lo := float64(st.MinSleepSecs)
	span := float64(st.MaxSleepSecs) - lo
	if span < 0 {
		span = 0
	}

	avg := clamp(lo+ratio*span, minAverageSecs, maxAverageSecs)
	raw := avg*0.5 + src.Float64()*avg

	secs := math.Min(math.Max(lo, raw), maxSleepSecs)
	return time.Duration(int64(secs)) * time.Second
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
