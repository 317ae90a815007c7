package rest

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig carries the router's cross-cutting dependencies.
type RouterConfig struct {
	Handler           *Handler
	Logger            *zap.Logger
	Registry          *prometheus.Registry
	VerifyRateLimit   int
	VerifyRateBurst   int
	ReadinessCheckers map[string]HealthChecker
}

// NewRouter builds the HTTP surface: the assessment pipeline under /api/v1
// plus the operational endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := cfg.Handler
	logger := cfg.Logger

	mux.HandleFunc("POST /api/v1/assessments", h.CreateAssessment)
	mux.HandleFunc("GET /api/v1/assessments/{id}", h.GetAssessment)
	mux.HandleFunc("POST /api/v1/assessments/{id}/links", h.LinkAssessment)
	mux.HandleFunc("GET /api/v1/assessments/{id}/links", h.GetLinks)
	mux.HandleFunc("GET /api/v1/assessments/{id}/justification", h.GetJustification)
	mux.HandleFunc("POST /api/v1/assessments/{id}/justification", h.RegenerateJustification)

	// The verify endpoint carries its own limiter on top of the token's
	// attempt budget.
	verify := http.HandlerFunc(h.Verify)
	if cfg.VerifyRateLimit > 0 {
		mux.Handle("POST /api/v1/verifications/verify",
			RateLimit(cfg.VerifyRateLimit, cfg.VerifyRateBurst, logger)(verify))
	} else {
		mux.Handle("POST /api/v1/verifications/verify", verify)
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		failures := map[string]string{}
		for name, checker := range cfg.ReadinessCheckers {
			if err := checker.HealthCheck(r.Context()); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":   "degraded",
				"failures": failures,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if cfg.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	return Chain(mux,
		Recover(logger),
		RequestID(),
		Tracing(),
		Logging(logger),
	)
}
