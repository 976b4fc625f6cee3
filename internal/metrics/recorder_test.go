package metrics

import "time"

type testRecorder struct {
	cycles   int
	outcomes map[Outcome]int
	sleeps   []time.Duration
	stages   map[string]int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{outcomes: map[Outcome]int{}, stages: map[string]int{}}
}

func (t *testRecorder) ObserveCycleDuration(time.Duration) { t.cycles++ }

func (t *testRecorder) IncCycleOutcome(o Outcome) { t.outcomes[o]++ }

func (t *testRecorder) ObserveSleep(d time.Duration) { t.sleeps = append(t.sleeps, d) }

func (t *testRecorder) ObserveStageDuration(s string, _ time.Duration) { t.stages[s]++ }

func (t *testRecorder) IncTransportError(string, string) {}

func (t *testRecorder) SetLastActivation(time.Time) {}

var (
	_ Recorder = (*testRecorder)(nil)
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)
