// Package sandbox is an in-process MoviesNow backend emulator. It serves
// the same REST surface the real platform does — auth, sessions, MFA
// recovery codes, notifications, alert subscriptions, admin bundles and
// RBAC — with JWT tokens, idempotency replay, rate limiting, and
// deliberate response-envelope rotation so the client's shape-tolerance
// contracts get exercised end to end.
package sandbox

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moviesnow/internal/platform/config"
)

// Server holds the sandbox state and handlers.
type Server struct {
	cfg      config.Sandbox
	logger   *slog.Logger
	store    *store
	tokens   *tokenIssuer
	idem     *idempotencyStore
	limiter  *rateLimiter
	shapes   *shapeRotation
	registry *prometheus.Registry
	validate *validator.Validate
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a sandbox server from the given configuration.
func New(cfg config.Sandbox, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: prometheus.NewRegistry(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.store = newStore(s.now)
	if cfg.SeedDemoAccounts {
		s.store.seed()
	}
	s.tokens = newTokenIssuer(cfg.SigningKey, s.now)
	s.idem = newIdempotencyStore(cfg.IdempotencyTTL, s.now)
	s.limiter = newRateLimiter(cfg.RateLimitPerMin, s.now)
	s.shapes = newShapeRotation(cfg.ShapeSeed)

	s.registry.MustRegister(collectors.NewGoCollector())
	s.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return s
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoverPanics)
	r.Use(s.assignRequestID)
	r.Use(s.logRequests)
	r.Use(s.limitRate)
	r.Use(s.replayIdempotent)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// Everything below requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/reauth", s.handleReauth)
			r.Get("/auth/activity", s.handleActivity)

			r.Get("/auth/sessions", s.handleSessionsList)
			r.Delete("/auth/sessions", s.handleSessionsRevokeOthers)
			r.Delete("/auth/sessions/{jti}", s.handleSessionRevoke)

			r.Get("/auth/mfa/recovery-codes", s.handleRecoveryCodes)
			r.With(s.requireReauth).Post("/auth/mfa/recovery-codes/generate", s.handleRecoveryCodesGenerate)

			r.Get("/notifications", s.handleNotificationsList)
			r.Post("/notifications/read-all", s.handleNotificationsReadAll)
			r.Post("/notifications/{id}/read", s.handleNotificationRead)
			r.Post("/notifications/{id}/pin", s.handleNotificationPin)
			r.Post("/notifications/{id}/unpin", s.handleNotificationUnpin)

			r.Get("/alerts/subscriptions", s.handleSubscriptionsGet)
			r.Patch("/alerts/subscriptions", s.handleSubscriptionsUpdate)

			// Admin surface.
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Get("/admin/bundles", s.handleBundlesList)
				r.Post("/admin/bundles", s.handleBundleCreate)
				r.Patch("/admin/bundles/{id}", s.handleBundleUpdate)
				r.With(s.requireReauth).Delete("/admin/bundles/{id}", s.handleBundleDelete)
				r.Post("/admin/uploads", s.handleUpload)

				r.Get("/admin/roles", s.handleRolesList)
				r.Post("/admin/roles", s.handleRoleCreate)
				r.Patch("/admin/roles/{id}", s.handleRoleUpdate)
				r.With(s.requireReauth).Delete("/admin/roles/{id}", s.handleRoleDelete)
				r.Get("/admin/permissions", s.handlePermissionsList)
				r.Post("/admin/users/{id}/roles", s.handleRoleAssign)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
