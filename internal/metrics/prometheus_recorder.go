package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "cfgsync"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	cycleDuration   prom.Histogram
	cycleOutcomes   *prom.CounterVec
	sleepSeconds    prom.Histogram
	stageDuration   *prom.HistogramVec
	transportErrors *prom.CounterVec
	lastActivation  prom.Gauge
}

// NewPrometheusRecorder constructs the cfgsync metrics and registers them on reg.
// A nil reg gets a fresh private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		cycleDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of daemon cycles, excluding the sleep",
			Buckets:   prom.ExponentialBuckets(0.05, 2, 14),
		}),
		cycleOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Daemon cycles by outcome",
		}, []string{"outcome"}),
		sleepSeconds: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "sleep_seconds",
			Help:      "Computed sleep before each remote check",
			Buckets:   []float64{5, 15, 30, 60, 120, 180, 300, 600, 1800, 3600},
		}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of cycle stages (fetch_tag, pull, activate, persist)",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		transportErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Transport failures by scheme and operation",
		}, []string{"scheme", "op"}),
		lastActivation: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_activation_timestamp_seconds",
			Help:      "Unix time of the last successful activation",
		}),
	}
	reg.MustRegister(pr.cycleDuration, pr.cycleOutcomes, pr.sleepSeconds, pr.stageDuration, pr.transportErrors, pr.lastActivation)
	return pr
}

func (p *PrometheusRecorder) ObserveCycleDuration(d time.Duration) {
	p.cycleDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCycleOutcome(outcome Outcome) {
	p.cycleOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveSleep(d time.Duration) {
	p.sleepSeconds.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTransportError(scheme, op string) {
	p.transportErrors.WithLabelValues(scheme, op).Inc()
}

func (p *PrometheusRecorder) SetLastActivation(t time.Time) {
	p.lastActivation.Set(float64(t.Unix()))
}
