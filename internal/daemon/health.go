package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"git.home.luguber.info/inful/cfgsync/internal/metrics"
	"git.home.luguber.info/inful/cfgsync/internal/version"
)

// HealthStatus represents the overall health of the daemon
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// LastCycle is the health view of the most recent cycle.
type LastCycle struct {
	CycleID    string    `json:"cycle_id"`
	Outcome    string    `json:"outcome"`
	Stage      string    `json:"stage,omitempty"`
	VersionTag string    `json:"version_tag,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status              HealthStatus `json:"status"`
	DaemonStatus        Status       `json:"daemon_status"`
	Timestamp           time.Time    `json:"timestamp"`
	Uptime              string       `json:"uptime"`
	Version             string       `json:"version"`
	Cycles              int          `json:"cycles"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastCycle           *LastCycle   `json:"last_cycle,omitempty"`
}

// PerformHealthChecks summarizes the daemon's current health.
//
// A daemon that is not running is unhealthy; one whose last cycle failed is
// degraded; otherwise it is healthy.
func (d *Daemon) PerformHealthChecks() *HealthResponse {
	now := d.clock.Now()
	status := d.GetStatus()

	resp := &HealthResponse{
		Status:              HealthStatusHealthy,
		DaemonStatus:        status,
		Timestamp:           now.UTC(),
		Version:             version.Version,
		Cycles:              d.Cycles(),
		ConsecutiveFailures: d.ConsecutiveFailures(),
	}
	if start := d.GetStartTime(); !start.IsZero() {
		resp.Uptime = now.Sub(start).Truncate(time.Second).String()
	}

	if last := d.LastCycle(); last != nil {
		resp.LastCycle = &LastCycle{
			CycleID:    last.CycleID,
			Outcome:    string(last.Outcome),
			Stage:      last.Stage,
			VersionTag: last.VersionTag,
			FinishedAt: last.StartedAt.Add(last.Duration).UTC(),
			Error:      last.errorText(),
		}
		if last.Outcome == metrics.OutcomeFailed {
			resp.Status = HealthStatusDegraded
		}
	}

	if status != StatusRunning && status != StatusStarting {
		resp.Status = HealthStatusUnhealthy
	}
	return resp
}

// HealthHandler serves PerformHealthChecks as JSON; unhealthy maps to 503.
func (d *Daemon) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	resp := d.PerformHealthChecks()

	w.Header().Set("Content-Type", "application/json")
	if resp.Status == HealthStatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
