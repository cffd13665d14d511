package flows

import "context"

// LogoutMetrics carries metric IDs needed by the logout flow.
type LogoutMetrics struct {
	Logout int
}

// LogoutEvents carries audit event names used by the logout flow.
type LogoutEvents struct {
	Logout string
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	// LookupUserID resolves the session owner for audit purposes. It returns ""
	// when the session is already gone.
	LookupUserID   func(ctx context.Context, sessionID string) string
	DestroySession func(ctx context.Context, sessionID string) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics LogoutMetrics
	Events  LogoutEvents
}

// RunLogout destroys sessionID. Logging out without a session is not an error.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}

	userID := ""
	if sessionID != "" && deps.LookupUserID != nil {
		userID = deps.LookupUserID(ctx, sessionID)
	}

	var err error
	if deps.DestroySession != nil {
		err = deps.DestroySession(ctx, sessionID)
	}

	if userID != "" {
		deps.MetricInc(deps.Metrics.Logout)
	}
	deps.EmitAudit(ctx, deps.Events.Logout, err == nil, userID, "", err, nil)
	return err
}
