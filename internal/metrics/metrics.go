// Package metrics exposes the engine's overrun/underrun/device-error
// counters as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry and the counters registered to it.
type Registry struct {
	reg *prometheus.Registry

	Overruns     *prometheus.CounterVec
	Underruns    *prometheus.CounterVec
	DeviceErrors *prometheus.CounterVec
}

// NewRegistry builds a registry with the counters pre-registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		Overruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "troubadour",
			Name:      "ring_overruns_total",
			Help:      "Samples dropped because a stream's ring was full on write.",
		}, []string{"device_id"}),
		Underruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "troubadour",
			Name:      "ring_underruns_total",
			Help:      "Samples synthesized as zero because a stream's ring was empty on read.",
		}, []string{"device_id"}),
		DeviceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "troubadour",
			Name:      "device_errors_total",
			Help:      "Device stream failures, by device id.",
		}, []string{"device_id"}),
	}

	reg.MustRegister(r.Overruns, r.Underruns, r.DeviceErrors)
	return r
}

// Server serves /metrics on addr until Shutdown is called. An empty addr
// means metrics are disabled; Start then returns a no-op Server.
type Server struct {
	http *http.Server
}

// Start begins serving r's metrics on addr in a background goroutine. If
// addr is empty, Start does nothing and returns a Server whose Shutdown is
// a no-op.
func (r *Registry) Start(addr string) *Server {
	if addr == "" {
		return &Server{}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics: server error: %v", err)
		}
	}()
	return &Server{http: srv}
}

// Shutdown gracefully stops the metrics server, if one was started.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
