package metrics

import "time"

// Outcome enumerates how a daemon cycle ended.
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeActivated Outcome = "activated"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Recorder defines observability hooks for daemon cycles. Implementations
// may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveCycleDuration(d time.Duration)
	IncCycleOutcome(outcome Outcome)
	ObserveSleep(d time.Duration)
	ObserveStageDuration(stage string, d time.Duration)
	IncTransportError(scheme, op string)
	SetLastActivation(t time.Time)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCycleDuration(time.Duration)         {}
func (NoopRecorder) IncCycleOutcome(Outcome)                    {}
func (NoopRecorder) ObserveSleep(time.Duration)                 {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncTransportError(string, string)           {}
func (NoopRecorder) SetLastActivation(time.Time)                {}
