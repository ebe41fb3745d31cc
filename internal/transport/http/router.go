package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinicaudit/internal/platform/metrics"
	"clinicaudit/internal/platform/middleware"
	"clinicaudit/pkg/platform/httputil"
	"clinicaudit/pkg/platform/middleware/metadata"
	"clinicaudit/pkg/platform/middleware/requesttime"
)

// Pinger reports whether the audit store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps are the handlers and shared infrastructure the router mounts.
type RouterDeps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Health   Pinger

	// TrustedProxies may set X-Forwarded-For; nil trusts no one.
	TrustedProxies *metadata.TrustedProxies

	Auth  *AuthHandler
	Audit *AuditHandler
	Admin *AdminHandler
}

// NewRouter wires every endpoint behind the common middleware chain.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata(deps.TrustedProxies))
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.LatencyMiddleware(deps.Metrics))
	r.Use(middleware.SecurityHeaders)

	r.Get("/healthz", healthHandler(deps.Health))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		if deps.Auth != nil {
			deps.Auth.Register(r)
		}
		if deps.Audit != nil {
			deps.Audit.Register(r)
		}
		if deps.Admin != nil {
			deps.Admin.Register(r)
		}
	})
	return r
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.PingContext(ctx); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
