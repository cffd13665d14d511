package flows

import "context"

// User is the flow-local view of an account.
type User struct {
	UserID     string
	Email      string
	Username   string
	Name       string
	Role       string
	IsVerified bool
}

// IssuedSession is the flow-local view of a created session.
type IssuedSession struct {
	SessionID string
	UserID    string
}

// AuditFunc emits one audit event. metadata may be nil.
type AuditFunc func(ctx context.Context, event string, success bool, userID, email string, err error, metadata func() map[string]string)

// Deps groups flow dependency sets. The Engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login             LoginDeps
	Register          RegisterDeps
	ChangePassword    ChangePasswordDeps
	Validate          ValidateDeps
	EmailVerification EmailVerificationDeps
	PasswordReset     PasswordResetDeps
}

func noopMetric(int) {}

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func emptyIP(context.Context) string { return "" }
