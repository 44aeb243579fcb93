// Package httptransport assembles the HTTP surface: the shared middleware
// stack, the public verification routes and the admin group.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certify/pkg/platform/middleware/admin"
	request "certify/pkg/platform/middleware/request"
	"certify/pkg/platform/middleware/requesttime"
	"certify/pkg/platform/validation"
)

// DefaultAdminTimeout bounds admin requests. Issuance may wait on a
// synchronous ledger mint, so it sits above the anchor timeout.
const DefaultAdminTimeout = 60 * time.Second

// PublicRoutes mounts unauthenticated endpoints.
type PublicRoutes interface {
	Register(r chi.Router)
}

// AdminRoutes mounts endpoints behind the admin token.
type AdminRoutes interface {
	RegisterAdmin(r chi.Router)
}

// StreamRoutes mounts long-lived admin endpoints that must not be cut by
// the request timeout.
type StreamRoutes interface {
	RegisterStream(r chi.Router)
}

// Routes lists everything the router serves. Nil entries are skipped.
type Routes struct {
	Public []PublicRoutes
	Admin  []AdminRoutes
	Stream []StreamRoutes

	Tokens       *admin.Tokens
	Gatherer     prometheus.Gatherer
	Metrics      *request.Metrics
	AdminTimeout time.Duration
}

// NewRouter wires the middleware stack and every route group.
func NewRouter(routes Routes, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(requesttime.Middleware)
	if routes.Metrics != nil {
		r.Use(request.LatencyMiddleware(routes.Metrics))
	}
	r.Use(request.BodyLimit(validation.MaxBodySize))

	if routes.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(routes.Gatherer, promhttp.HandlerOpts{}))
	}

	for _, p := range routes.Public {
		p.Register(r)
	}

	if routes.Tokens == nil {
		return r
	}

	timeout := routes.AdminTimeout
	if timeout <= 0 {
		timeout = DefaultAdminTimeout
	}
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdmin(routes.Tokens, logger))
		r.Use(request.ContentTypeJSON)
		r.Use(request.Timeout(timeout))
		for _, a := range routes.Admin {
			a.RegisterAdmin(r)
		}
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdmin(routes.Tokens, logger))
		for _, s := range routes.Stream {
			s.RegisterStream(r)
		}
	})

	return r
}
