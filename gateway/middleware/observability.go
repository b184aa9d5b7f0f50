package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendcore/observability"
	"lendcore/observability/logging"
)

// Observability records request metrics and, optionally, structured access
// logs for every gateway route.
type Observability struct {
	logger      *slog.Logger
	logRequests bool
}

func NewObservability(logger *slog.Logger, logRequests bool) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observability{logger: logger, logRequests: logRequests}
}

// Middleware wraps the handler with per-route metrics and access logging.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)
			observability.Gateway().ObserveRequest(route, recorder.status, elapsed)
			if o.logRequests {
				o.logger.Info("gateway request",
					"route", route,
					"method", r.Method,
					"status", recorder.status,
					"elapsed_ms", elapsed.Milliseconds(),
					logging.MaskField("client", clientID(r)),
				)
			}
		})
	}
}

// MetricsHandler exposes the process Prometheus registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
