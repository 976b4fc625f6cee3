package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/metrics"
)

func TestPerformHealthChecks(t *testing.T) {
	h := newHarness(t)

	resp := h.daemon.PerformHealthChecks()
	require.Equal(t, HealthStatusUnhealthy, resp.Status, "a stopped daemon is unhealthy")
	require.Nil(t, resp.LastCycle)

	h.daemon.status.Store(StatusRunning)
	resp = h.daemon.PerformHealthChecks()
	require.Equal(t, HealthStatusHealthy, resp.Status)

	st := h.seed("v1")
	h.transport.TagErr = syncerrors.TransportFailed("fetch version tag", remoteURL, errors.New("dns"))
	_, res := h.daemon.RunCycle(context.Background(), st)

	resp = h.daemon.PerformHealthChecks()
	require.Equal(t, HealthStatusDegraded, resp.Status)
	require.Equal(t, 1, resp.ConsecutiveFailures)
	require.NotNil(t, resp.LastCycle)
	require.Equal(t, res.CycleID, resp.LastCycle.CycleID)
	require.Equal(t, "failed", resp.LastCycle.Outcome)
	require.Equal(t, StageFetchTag, resp.LastCycle.Stage)
	require.Contains(t, resp.LastCycle.Error, "dns")
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.daemon.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.daemon.status.Store(StatusRunning)
	rec = httptest.NewRecorder()
	h.daemon.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, HealthStatusHealthy, body.Status)
	require.Equal(t, StatusRunning, body.DaemonStatus)
}

func TestHTTPServer_ServesMetricsAndHealth(t *testing.T) {
	h := newHarness(t)
	h.daemon.status.Store(StatusRunning)

	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	rec.IncCycleOutcome(metrics.OutcomeUnchanged)

	srv := NewHTTPServer("127.0.0.1:0", h.daemon, reg)
	require.NoError(t, srv.Start(context.Background()))
	defer func() { _ = srv.Stop(context.Background()) }()
	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(body), "cfgsync_daemon_up 1"))
	require.True(t, strings.Contains(string(body), `cfgsync_cycles_total{outcome="unchanged"} 1`))

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPServer_PortConflict(t *testing.T) {
	h := newHarness(t)
	first := NewHTTPServer("127.0.0.1:0", h.daemon, prom.NewRegistry())
	require.NoError(t, first.Start(context.Background()))
	defer func() { _ = first.Stop(context.Background()) }()

	second := NewHTTPServer(first.Addr(), h.daemon, prom.NewRegistry())
	require.Error(t, second.Start(context.Background()))
}
