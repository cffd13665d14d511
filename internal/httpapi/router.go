package httpapi

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pharmalens/dashauth"
	"github.com/pharmalens/dashauth/directory"
	"github.com/pharmalens/dashauth/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// Options configures NewRouter.
type Options struct {
	Logger zerolog.Logger
	// Metrics serves GET /metrics. Nil disables the route.
	Metrics http.Handler
}

type api struct {
	engine *dashauth.Engine
	logger zerolog.Logger
}

// NewRouter returns the service's HTTP handler.
func NewRouter(engine *dashauth.Engine, opts Options) http.Handler {
	a := &api{engine: engine, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(hlog.NewHandler(opts.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("request")
	}))
	r.Use(clientIP)

	r.Get("/healthz", a.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/login", a.login)
		r.Post("/logout", a.logout)
		r.Get("/verify-email", a.verifyEmail)
		r.Post("/forgot-password", a.forgotPassword)
		r.Get("/reset-password", a.checkResetToken)
		r.Post("/reset-password", a.resetPassword)

		// Unverified users must reach resend; the handler checks the principal.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Gate(engine, sessionOptional, middleware.WithLogger(opts.Logger)))
			r.Post("/verify-email/resend", a.resendVerification)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Gate(engine, allProtected,
			middleware.WithDenyHandler(a.deny),
			middleware.WithLogger(opts.Logger),
		))
		r.Get("/me", a.me)
		r.Patch("/me", a.updateMe)
		r.Post("/me/password", a.changePassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(directory.RoleAdmin))
			r.Get("/admin/sessions", a.activeSessions)
			r.Get("/admin/login-attempts", a.loginAttempts)
			r.Put("/admin/users/{id}/role", a.setRole)
		})
	})

	return r
}

var (
	allProtected = middleware.ClassifierFunc(func(*http.Request) middleware.RouteClass {
		return middleware.RouteProtected
	})
	sessionOptional = middleware.ClassifierFunc(func(*http.Request) middleware.RouteClass {
		return middleware.RouteNeither
	})
)

// clientIP forwards the remote address (already rewritten by RealIP) to the
// engine for IP throttling and audit records.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(dashauth.WithClientIP(r.Context(), ip)))
	})
}
