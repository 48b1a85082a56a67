// control/status.go
// Author: momentics <momentics@gmail.com>
//
// HTTP status endpoint: Prometheus exposition, health and debug probes.

package control

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports whether the process is serving. A non-nil error turns
// /healthz into 503.
type HealthFunc func() error

// StatusOptions configures NewStatusHandler. Nil fields disable the routes
// that need them, except Gatherer which defaults to prometheus.DefaultGatherer.
type StatusOptions struct {
	Gatherer prometheus.Gatherer
	Probes   *DebugProbes
	Health   HealthFunc
}

// NewStatusHandler builds the router:
//
//	GET /metrics        Prometheus text exposition
//	GET /healthz        "ok" or 503 with the health error
//	GET /debug/probes   JSON dump of all probes
func NewStatusHandler(opts StatusOptions) http.Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Probes != nil {
		r.Get("/debug/probes", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(opts.Probes.DumpState())
		})
	}
	return r
}
