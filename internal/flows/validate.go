package flows

import (
	"context"
	"time"
)

// SessionView is the flow-local view of a stored session.
type SessionView struct {
	SessionID string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Validated is a session resolved to its current user.
type Validated struct {
	User    User
	Session SessionView
}

// ValidateMetrics carries metric IDs needed by the validate flow.
type ValidateMetrics struct {
	SessionInvalid int
	UserMissing    int
}

// ValidateErrors carries host-level sentinel errors used by the validate flow.
type ValidateErrors struct {
	EngineNotReady  error
	Unauthenticated error
	UserNotFound    error
}

// ValidateDeps captures session validation dependencies. Both lookups are
// expected to collapse store errors to a not-found result.
type ValidateDeps struct {
	GetSession func(ctx context.Context, sessionID string) (SessionView, error)
	GetUser    func(ctx context.Context, userID string) (User, error)

	MetricInc func(int)

	Metrics ValidateMetrics
	Errors  ValidateErrors
}

// RunValidate resolves sessionID to a live session and its user. It is read
// only: it never creates, refreshes or deletes sessions beyond the lazy expiry
// cleanup the session lookup performs.
func RunValidate(ctx context.Context, sessionID string, deps ValidateDeps) (*Validated, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.GetSession == nil || deps.GetUser == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if sessionID == "" {
		return nil, deps.Errors.Unauthenticated
	}

	sess, err := deps.GetSession(ctx, sessionID)
	if err != nil {
		deps.MetricInc(deps.Metrics.SessionInvalid)
		return nil, deps.Errors.Unauthenticated
	}

	user, err := deps.GetUser(ctx, sess.UserID)
	if err != nil {
		deps.MetricInc(deps.Metrics.UserMissing)
		return nil, deps.Errors.UserNotFound
	}

	return &Validated{User: user, Session: sess}, nil
}
