package daemon

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/cfgsync/internal/logfields"
	"git.home.luguber.info/inful/cfgsync/internal/metrics"
)

// HTTPServer serves /metrics and /healthz for the daemon.
type HTTPServer struct {
	addr     string
	daemon   *Daemon
	registry *prom.Registry
	server   *http.Server
	listener net.Listener
}

// NewHTTPServer creates the listener wrapper. Daemon gauges are registered on reg,
// which is then exposed at /metrics.
func NewHTTPServer(addr string, d *Daemon, reg *prom.Registry) *HTTPServer {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	reg.MustRegister(
		prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: "cfgsync",
			Name:      "consecutive_failed_cycles",
			Help:      "Failed cycles since the last successful or unchanged one",
		}, func() float64 { return float64(d.ConsecutiveFailures()) }),
		prom.NewGaugeFunc(prom.GaugeOpts{
			Namespace: "cfgsync",
			Name:      "daemon_up",
			Help:      "1 while the daemon loop is running",
		}, func() float64 {
			if d.GetStatus() == StatusRunning {
				return 1
			}
			return 0
		}),
	)
	return &HTTPServer{addr: addr, daemon: d, registry: reg}
}

// Handler returns the route table.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.HTTPHandler(s.registry))
	mux.HandleFunc("GET /healthz", s.daemon.HealthHandler)
	return mux
}

// Start binds the address up front, so a port conflict fails the daemon start,
// then serves in the background.
func (s *HTTPServer) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listener %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", logfields.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
