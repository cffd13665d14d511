package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/pharmalens/dashauth"
	"github.com/rs/zerolog"
)

const (
	// DefaultLoginPath is where anonymous visitors of protected routes are sent.
	DefaultLoginPath = "/login"
	// DefaultVerifyPath is where unverified users of protected routes are sent.
	DefaultVerifyPath = "/verify-email"
)

// Authenticator resolves a session id to its principal. *dashauth.Engine
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID string) (*dashauth.Principal, error)
	SessionIDFromRequest(r *http.Request) string
	ClearSessionCookie(w http.ResponseWriter)
}

// Denial is the reason a protected route was refused.
type Denial int

const (
	// DenyUnauthenticated means no live session or user backs the request.
	DenyUnauthenticated Denial = iota + 1
	// DenyUnverified means the user has not confirmed their email yet.
	DenyUnverified
)

// DenyHandler answers a refused request.
type DenyHandler func(w http.ResponseWriter, r *http.Request, reason Denial)

type principalContextKey struct{}

// PrincipalFromContext returns the principal the gate attached to ctx.
func PrincipalFromContext(ctx context.Context) (*dashauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*dashauth.Principal)
	return p, ok && p != nil
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *dashauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

type gateConfig struct {
	loginPath         string
	verifyPath        string
	authenticatedHome string
	deny              DenyHandler
	logger            zerolog.Logger
}

// GateOption customizes [Gate].
type GateOption func(*gateConfig)

// WithLoginPath overrides the login redirect target.
func WithLoginPath(path string) GateOption {
	return func(c *gateConfig) { c.loginPath = path }
}

// WithVerifyPath overrides the email-verification redirect target.
func WithVerifyPath(path string) GateOption {
	return func(c *gateConfig) { c.verifyPath = path }
}

// WithAuthenticatedHome sends verified, signed-in users away from public
// routes (login, register) to path. Disabled by default.
func WithAuthenticatedHome(path string) GateOption {
	return func(c *gateConfig) { c.authenticatedHome = path }
}

// WithDenyHandler replaces the default redirects, e.g. with JSON 401/403
// responses for API routes.
func WithDenyHandler(h DenyHandler) GateOption {
	return func(c *gateConfig) { c.deny = h }
}

// WithLogger logs unexpected authentication errors.
func WithLogger(logger zerolog.Logger) GateOption {
	return func(c *gateConfig) { c.logger = logger }
}

// Gate enforces session state per route class:
//
//   - protected route without a cookie: deny (login)
//   - absent or expired session, or deleted user: on protected routes clear
//     the cookie and deny (login); elsewhere proceed anonymously
//   - unverified user on a protected route: deny (verify), cookie untouched
//   - unexpected errors fail closed on protected routes
//
// Authenticated requests carry the principal in their context on every route.
func Gate(auth Authenticator, classifier RouteClassifier, opts ...GateOption) func(http.Handler) http.Handler {
	cfg := gateConfig{
		loginPath:  DefaultLoginPath,
		verifyPath: DefaultVerifyPath,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.deny == nil {
		cfg.deny = redirectDenials(cfg.loginPath, cfg.verifyPath)
	}
	if classifier == nil {
		classifier = PrefixClassifier{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := classifier.Classify(r)
			protected := class == RouteProtected

			if auth == nil {
				if protected {
					cfg.deny(w, r, DenyUnauthenticated)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			sessionID := auth.SessionIDFromRequest(r)
			if sessionID == "" {
				if protected {
					cfg.deny(w, r, DenyUnauthenticated)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			p, err := auth.Authenticate(r.Context(), sessionID)
			switch {
			case errors.Is(err, dashauth.ErrUnauthenticated), errors.Is(err, dashauth.ErrUserNotFound):
				if protected {
					auth.ClearSessionCookie(w)
					cfg.deny(w, r, DenyUnauthenticated)
					return
				}
				next.ServeHTTP(w, r)
				return
			case err != nil:
				cfg.logger.Error().Err(err).Str("path", r.URL.Path).Msg("authenticate request")
				if protected {
					cfg.deny(w, r, DenyUnauthenticated)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if protected && !p.IsVerified {
				cfg.deny(w, r, DenyUnverified)
				return
			}
			if class == RoutePublic && p.IsVerified && cfg.authenticatedHome != "" {
				http.Redirect(w, r, cfg.authenticatedHome, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func redirectDenials(loginPath, verifyPath string) DenyHandler {
	return func(w http.ResponseWriter, r *http.Request, reason Denial) {
		target := loginPath
		if reason == DenyUnverified {
			target = verifyPath
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}
