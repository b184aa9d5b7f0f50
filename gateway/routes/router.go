package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendcore/gateway/middleware"
	"lendcore/native/risk"
	"lendcore/storage/audit"
)

// Config assembles the gateway's HTTP surface.
type Config struct {
	Engine *risk.Engine
	Audit  *audit.Store
	// Feed enables the price administration endpoint when the deployment
	// manages quotes in-process.
	Feed          *risk.StaticFeed
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	// AdminAuth guards the /v1/admin subtree. When nil or without
	// credentials the admin routes reject every request.
	AdminAuth *middleware.AdminAuth
	CORS      middleware.CORSConfig
}

// New builds the chi router exposing the risk engine under /v1.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rr := newRiskRoutes(cfg.Engine, cfg.Audit, cfg.Feed)
	r.Route("/v1", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware("v1"))
		}
		if obs != nil {
			sr.Use(obs.Middleware("v1"))
		}
		rr.mount(sr)
		sr.Route("/admin", func(ar chi.Router) {
			ar.Use(cfg.AdminAuth.Middleware())
			rr.mountAdmin(ar)
		})
	})

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	return otelhttp.NewHandler(r, "lendcore-gateway")
}
