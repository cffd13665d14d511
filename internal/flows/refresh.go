package flows

import (
	"context"
	"time"
)

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	RefreshSuccess int
	RefreshFailure int
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	RefreshSuccess string
}

// RefreshDeps captures sliding-refresh dependencies.
type RefreshDeps struct {
	// Threshold is the fraction of the session lifetime that must remain;
	// below it the session is replaced. Zero disables refresh.
	Threshold float64
	Now       func() time.Time

	RefreshSession func(ctx context.Context, sessionID string) (SessionView, error)

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(msg string, err error)

	Metrics RefreshMetrics
	Events  RefreshEvents
}

// NeedsRefresh reports whether less than threshold of the session's lifetime remains.
func NeedsRefresh(sess SessionView, threshold float64, now time.Time) bool {
	if threshold <= 0 {
		return false
	}
	lifetime := sess.ExpiresAt.Sub(sess.CreatedAt)
	if lifetime <= 0 {
		return false
	}
	remaining := sess.ExpiresAt.Sub(now)
	return float64(remaining) < threshold*float64(lifetime)
}

// RunRefreshIfStale replaces the session when it is past the refresh
// threshold and returns the session the caller should use from now on. On
// failure it returns current with the error; the request that triggered the
// refresh stays authenticated.
func RunRefreshIfStale(ctx context.Context, current SessionView, deps RefreshDeps) (SessionView, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}
	if deps.RefreshSession == nil || !NeedsRefresh(current, deps.Threshold, deps.Now()) {
		return current, nil
	}

	fresh, err := deps.RefreshSession(ctx, current.SessionID)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.Warn("refresh session", err)
		return current, err
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, deps.Events.RefreshSuccess, true, fresh.UserID, "", nil, nil)
	return fresh, nil
}
