package flows

import "context"

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	User                 User
	Session              IssuedSession
	RequiresVerification bool
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	SessionCreated   int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	Validation         error
	InvalidCredentials error
	LoginRateLimited   error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	RequireVerification bool

	ClientIPFromContext func(context.Context) string

	CheckLoginRate     func(ctx context.Context, email, ip string) error
	IncrementLoginRate func(ctx context.Context, email, ip string) error
	ResetLoginRate     func(ctx context.Context, email string) error

	VerifyCredentials func(ctx context.Context, email, password string) (User, error)
	CreateSession     func(ctx context.Context, user User, rememberMe bool) (IssuedSession, error)

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(msg string, err error)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = emptyIP
	}
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}
}

// RunLogin verifies credentials and issues a session. Unverified users still
// receive a session; the result reports RequiresVerification so the caller can
// route them to the verification page.
func RunLogin(ctx context.Context, email, password string, rememberMe bool, deps LoginDeps) (*LoginResult, error) {
	normalizeLoginDeps(&deps)

	if deps.VerifyCredentials == nil || deps.CreateSession == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if email == "" || password == "" {
		return nil, invalid(deps.Errors.Validation, "email and password are required")
	}

	ip := deps.ClientIPFromContext(ctx)
	identifier := func() map[string]string {
		return map[string]string{"identifier": email}
	}

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			deps.MetricInc(deps.Metrics.LoginRateLimited)
			deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", email, deps.Errors.LoginRateLimited, identifier)
			return nil, deps.Errors.LoginRateLimited
		}
	}

	user, err := deps.VerifyCredentials(ctx, email, password)
	if err != nil {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, email, ip); err != nil {
				deps.MetricInc(deps.Metrics.LoginRateLimited)
				deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", email, deps.Errors.LoginRateLimited, identifier)
				return nil, deps.Errors.LoginRateLimited
			}
		}
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", email, deps.Errors.InvalidCredentials, identifier)
		return nil, deps.Errors.InvalidCredentials
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email); err != nil {
			deps.Warn("reset login rate limit", err)
		}
	}

	sess, err := deps.CreateSession(ctx, user, rememberMe)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, email, err, func() map[string]string {
			return map[string]string{"reason": "session_creation_failed"}
		})
		return nil, err
	}
	deps.MetricInc(deps.Metrics.SessionCreated)

	requiresVerification := deps.RequireVerification && !user.IsVerified

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.UserID, email, nil, func() map[string]string {
		if requiresVerification {
			return map[string]string{"requires_verification": "true"}
		}
		return nil
	})

	return &LoginResult{
		User:                 user,
		Session:              sess,
		RequiresVerification: requiresVerification,
	}, nil
}
