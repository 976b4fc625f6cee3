// Package metrics provides the daemon's observability hooks.
//
// Components receive a Recorder through dependency injection. NoopRecorder is the
// default and does nothing; PrometheusRecorder registers the cfgsync_* series on a
// registry that HTTPHandler then serves.
//
//	recorder := metrics.NewPrometheusRecorder(reg)
//	d := daemon.New(opts, daemon.WithRecorder(recorder))
package metrics
