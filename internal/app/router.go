package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/observability"
)

// Check probes one dependency for readiness.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// BuildOpsRouter constructs the operational HTTP handler: liveness,
// readiness, and Prometheus metrics. The worker has no other HTTP surface;
// all task traffic rides the broker.
func BuildOpsRouter(checks ...Check) http.Handler {
	r := chi.NewRouter()
	r.Use(observability.HTTPMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	r.Get("/readyz", ReadyzHandler(checks...))

	return r
}

// ReadyzHandler runs every check and reports per-dependency state. Any
// failing check makes the whole response 503.
func ReadyzHandler(checks ...Check) http.HandlerFunc {
	type result struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		results := make([]result, 0, len(checks))
		ok := true
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				ok = false
				results = append(results, result{Name: c.Name, OK: false, Details: err.Error()})
				continue
			}
			results = append(results, result{Name: c.Name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(st)
		_ = json.NewEncoder(w).Encode(map[string]any{"checks": results})
	}
}
