package dashauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pharmalens/dashauth/directory"
	"github.com/pharmalens/dashauth/internal/audit"
	"github.com/pharmalens/dashauth/internal/flows"
	"github.com/pharmalens/dashauth/internal/rate"
	"github.com/pharmalens/dashauth/internal/stores"
	"github.com/pharmalens/dashauth/kv"
	"github.com/pharmalens/dashauth/mail"
	"github.com/pharmalens/dashauth/session"
	"github.com/rs/zerolog"
)

// Engine runs the account, session and token operations.
//
// Engine is safe for concurrent use once built.
type Engine struct {
	config        Config
	store         kv.Store
	users         *directory.Directory
	sessions      *session.Manager
	verifications *stores.BindingStore
	resets        *stores.BindingStore
	limiter       *rate.Limiter
	mailer        mail.Sender
	composer      mail.Composer
	audit         *audit.Dispatcher
	metrics       *Metrics
	logger        zerolog.Logger
	now           func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the Engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// CookieName returns the session cookie name.
func (e *Engine) CookieName() string {
	return e.config.Session.CookieName
}

// SessionIDFromRequest returns the session id carried by r's cookie, or "".
func (e *Engine) SessionIDFromRequest(r *http.Request) string {
	return session.IDFromRequest(r, e.config.Session.CookieName)
}

// ClearSessionCookie expires the session cookie on w.
func (e *Engine) ClearSessionCookie(w http.ResponseWriter) {
	session.ClearCookie(w, e.config.Session.CookieName, e.config.Session.SecureCookie)
}

// Ping checks the key-value store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Authenticate resolves sessionID to its user. It is read only: it never
// creates or refreshes sessions. Absent and expired sessions return
// ErrUnauthenticated; a session whose user no longer exists returns
// ErrUserNotFound.
func (e *Engine) Authenticate(ctx context.Context, sessionID string) (*Principal, error) {
	if e == nil || e.sessions == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	v, err := flows.RunValidate(ctx, sessionID, e.validateFlowDeps())
	if err != nil {
		return nil, err
	}
	return principalFrom(v.User, v.Session), nil
}

// CurrentUser authenticates the request's session cookie and slides the
// session forward when less than Session.RefreshThreshold of its lifetime
// remains. A failed refresh keeps the request authenticated with the old
// session.
func (e *Engine) CurrentUser(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Principal, error) {
	p, err := e.Authenticate(ctx, e.SessionIDFromRequest(r))
	if err != nil {
		return nil, err
	}

	current := flows.SessionView{
		SessionID: p.SessionID,
		UserID:    p.UserID,
		CreatedAt: p.createdAt,
		ExpiresAt: p.ExpiresAt,
	}
	fresh, err := flows.RunRefreshIfStale(withSessionID(ctx, p.SessionID), current, e.refreshFlowDeps(w, r))
	if err == nil {
		p.SessionID = fresh.SessionID
		p.ExpiresAt = fresh.ExpiresAt
		p.createdAt = fresh.CreatedAt
	}
	return p, nil
}

// Logout destroys the request's session and clears the cookie. Logging out
// without a session is not an error.
func (e *Engine) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	id := e.SessionIDFromRequest(r)
	err := flows.RunLogout(withSessionID(ctx, id), id, flows.LogoutDeps{
		LookupUserID: func(ctx context.Context, sessionID string) string {
			sess, err := e.sessions.Get(ctx, nil, sessionID)
			if err != nil {
				return ""
			}
			return sess.UserID
		},
		DestroySession: func(ctx context.Context, sessionID string) error {
			return e.sessions.Destroy(ctx, w, r, sessionID)
		},
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Metrics:   flows.LogoutMetrics{Logout: int(MetricLogout)},
		Events:    flows.LogoutEvents{Logout: auditEventLogoutSession},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ActiveSessionCount returns the number of stored sessions.
func (e *Engine) ActiveSessionCount(ctx context.Context) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (e *Engine) validateFlowDeps() flows.ValidateDeps {
	return flows.ValidateDeps{
		GetSession: func(ctx context.Context, sessionID string) (flows.SessionView, error) {
			sess, err := e.sessions.Get(ctx, nil, sessionID)
			if err != nil {
				return flows.SessionView{}, err
			}
			return sessionView(sess), nil
		},
		GetUser:   e.getFlowUser,
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		Metrics: flows.ValidateMetrics{
			SessionInvalid: int(MetricSessionInvalid),
			UserMissing:    int(MetricSessionUserMissing),
		},
		Errors: flows.ValidateErrors{
			EngineNotReady:  ErrEngineNotReady,
			Unauthenticated: ErrUnauthenticated,
			UserNotFound:    ErrUserNotFound,
		},
	}
}

func (e *Engine) refreshFlowDeps(w http.ResponseWriter, r *http.Request) flows.RefreshDeps {
	return flows.RefreshDeps{
		Threshold: e.config.Session.RefreshThreshold,
		Now:       e.now,
		RefreshSession: func(ctx context.Context, sessionID string) (flows.SessionView, error) {
			sess, err := e.sessions.Refresh(ctx, w, r, sessionID)
			if err != nil {
				return flows.SessionView{}, err
			}
			e.metricInc(MetricSessionCreated)
			return sessionView(sess), nil
		},
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Metrics: flows.RefreshMetrics{
			RefreshSuccess: int(MetricRefreshSuccess),
			RefreshFailure: int(MetricRefreshFailure),
		},
		Events: flows.RefreshEvents{RefreshSuccess: auditEventRefreshSuccess},
	}
}

// sessionIssuer creates sessions for flows and remembers the last one issued
// so the caller can report its expiry.
type sessionIssuer struct {
	engine *Engine
	w      http.ResponseWriter
	issued *session.Session
}

func (s *sessionIssuer) create(ctx context.Context, user flows.User, rememberMe bool) (flows.IssuedSession, error) {
	sess, err := s.engine.sessions.Create(ctx, s.w, session.Identity{
		UserID:   user.UserID,
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
	}, rememberMe)
	if err != nil {
		return flows.IssuedSession{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.issued = sess
	return flows.IssuedSession{SessionID: sess.ID, UserID: sess.UserID}, nil
}

func (s *sessionIssuer) principal(user flows.User) *Principal {
	if s.issued == nil {
		return principalFrom(user, flows.SessionView{})
	}
	return principalFrom(user, sessionView(s.issued))
}

func (e *Engine) getFlowUser(ctx context.Context, userID string) (flows.User, error) {
	u, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return flows.User{}, mapDirectoryErr(err)
	}
	return flowUser(u), nil
}

func (e *Engine) findFlowUserByEmail(ctx context.Context, email string) (flows.User, error) {
	u, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		return flows.User{}, mapDirectoryErr(err)
	}
	return flowUser(u), nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, err error) {
	e.logger.Warn().Err(err).Msg(msg)
}

func mapDirectoryErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, directory.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, directory.ErrInvalidCredentials):
		return ErrInvalidCredentials
	case errors.Is(err, directory.ErrIncorrectPassword):
		return ErrIncorrectPassword
	case errors.Is(err, directory.ErrInvalidUser):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func flowUser(u *directory.User) flows.User {
	return flows.User{
		UserID:     u.ID,
		Email:      u.Email,
		Username:   u.Username,
		Name:       u.Name,
		Role:       string(u.Role),
		IsVerified: u.IsVerified,
	}
}

func sessionView(s *session.Session) flows.SessionView {
	return flows.SessionView{
		SessionID: s.ID,
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

func principalFrom(u flows.User, s flows.SessionView) *Principal {
	return &Principal{
		UserID:     u.UserID,
		SessionID:  s.SessionID,
		Email:      u.Email,
		Username:   u.Username,
		Name:       u.Name,
		Role:       directory.Role(u.Role),
		IsVerified: u.IsVerified,
		ExpiresAt:  s.ExpiresAt,
		createdAt:  s.CreatedAt,
	}
}
