package dashauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pharmalens/dashauth/directory"
	"github.com/pharmalens/dashauth/internal"
	"github.com/pharmalens/dashauth/internal/flows"
	"github.com/pharmalens/dashauth/internal/rate"
)

// Register creates an account and signs it in. Invalid input returns an
// ErrValidation wrapped error; a taken email or username returns
// ErrAccountExists. When EmailVerification.Required is set the account starts
// unverified and a verification email is sent. A failed send does not fail
// the registration; AuthResult.VerificationSent reports it.
func (e *Engine) Register(ctx context.Context, w http.ResponseWriter, req RegisterRequest) (*AuthResult, error) {
	if e == nil || e.users == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	issuer := &sessionIssuer{engine: e, w: w}
	res, err := flows.RunRegister(ctx, flows.RegisterInput{
		Username:   req.Username,
		Email:      directory.NormalizeEmail(req.Email),
		Name:       req.Name,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	}, e.registerFlowDeps(issuer))
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Principal:            issuer.principal(res.User),
		RequiresVerification: res.RequiresVerification,
		VerificationSent:     res.VerificationSent,
	}, nil
}

// Login verifies credentials and issues a session. Unknown emails and wrong
// passwords both return ErrInvalidCredentials. Unverified users still receive
// a session and AuthResult.RequiresVerification is set.
func (e *Engine) Login(ctx context.Context, w http.ResponseWriter, req LoginRequest) (*AuthResult, error) {
	if e == nil || e.users == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	issuer := &sessionIssuer{engine: e, w: w}
	res, err := flows.RunLogin(ctx, directory.NormalizeEmail(req.Email), req.Password, req.RememberMe, e.loginFlowDeps(issuer))
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Principal:            issuer.principal(res.User),
		RequiresVerification: res.RequiresVerification,
	}, nil
}

// UpdateProfile changes the display name of the request's user and replaces
// the session so the cookie carries a fresh id.
func (e *Engine) UpdateProfile(ctx context.Context, w http.ResponseWriter, r *http.Request, name string) (*Principal, error) {
	p, err := e.Authenticate(ctx, e.SessionIDFromRequest(r))
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationErr("name is required")
	}

	ctx = withSessionID(ctx, p.SessionID)
	u, err := e.users.UpdateUser(ctx, p.UserID, directory.Update{Name: &name})
	if err != nil {
		err = mapDirectoryErr(err)
		e.emitAudit(ctx, auditEventProfileUpdate, false, p.UserID, p.Email, err, nil)
		return nil, err
	}

	sess, err := e.sessions.Refresh(ctx, w, r, p.SessionID)
	if err != nil {
		// The profile is saved; the old session was either kept or is gone
		// and the user signs in again.
		e.warn("replace session after profile update", err)
		return principalFrom(flowUser(u), flows.SessionView{SessionID: p.SessionID, ExpiresAt: p.ExpiresAt}), nil
	}
	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricProfileUpdate)
	e.emitAudit(ctx, auditEventProfileUpdate, true, u.ID, u.Email, nil, nil)

	return principalFrom(flowUser(u), sessionView(sess)), nil
}

// SetUserRole assigns role to userID. Existing sessions pick the new role up
// on their next Authenticate.
func (e *Engine) SetUserRole(ctx context.Context, userID string, role directory.Role) (*Principal, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	u, err := e.users.UpdateUser(ctx, userID, directory.Update{Role: &role})
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	e.emitAudit(ctx, auditEventRoleChange, true, u.ID, u.Email, nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})
	return principalFrom(flowUser(u), flows.SessionView{}), nil
}

// FailedLoginAttempts returns the failed-login count recorded for email in the
// current cooldown window. Unknown emails report zero.
func (e *Engine) FailedLoginAttempts(ctx context.Context, email string) (int, error) {
	if e == nil || e.limiter == nil {
		return 0, ErrEngineNotReady
	}
	email = directory.NormalizeEmail(email)
	if err := flows.CheckEmail(email, ErrValidation); err != nil {
		return 0, err
	}

	n, err := e.limiter.LoginAttempts(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// ChangePassword replaces userID's password after re-verifying current. A
// wrong current password returns ErrIncorrectPassword and changes nothing.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	return flows.RunChangePassword(ctx, userID, current, next, flows.ChangePasswordDeps{
		Rules:          e.credentialRules(),
		ChangePassword: e.users.ChangePassword,
		MapError:       mapDirectoryErr,
		MetricInc:      func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:      e.emitAudit,
		Metrics: flows.ChangePasswordMetrics{
			PasswordChangeSuccess:    int(MetricPasswordChangeSuccess),
			PasswordChangeInvalidOld: int(MetricPasswordChangeInvalidOld),
		},
		Events: flows.ChangePasswordEvents{
			PasswordChangeSuccess:    auditEventPasswordChangeSuccess,
			PasswordChangeInvalidOld: auditEventPasswordChangeInvalidOld,
			PasswordChangeFailure:    auditEventPasswordChangeFailure,
		},
		Errors: flows.ChangePasswordErrors{
			EngineNotReady:    ErrEngineNotReady,
			Validation:        ErrValidation,
			IncorrectPassword: ErrIncorrectPassword,
		},
	})
}

func (e *Engine) registerFlowDeps(issuer *sessionIssuer) flows.RegisterDeps {
	return flows.RegisterDeps{
		Rules:               e.credentialRules(),
		RequireVerification: e.config.EmailVerification.Required,
		EmailExists: func(ctx context.Context, email string) (bool, error) {
			return exists(e.users.FindUserByEmail(ctx, email))
		},
		UsernameExists: func(ctx context.Context, username string) (bool, error) {
			return exists(e.users.FindUserByUsername(ctx, username))
		},
		NewToken: internal.NewToken,
		CreateUser: func(ctx context.Context, a flows.NewAccount) (flows.User, error) {
			u, err := e.users.CreateUser(ctx, directory.Registration{
				Username:          a.Username,
				Email:             a.Email,
				Name:              a.Name,
				Password:          a.Password,
				Role:              directory.RoleUser,
				IsVerified:        a.IsVerified,
				VerificationToken: a.VerificationToken,
			})
			if err != nil {
				return flows.User{}, mapDirectoryErr(err)
			}
			return flowUser(u), nil
		},
		SendVerification: e.sendVerificationMail,
		CreateSession:    issuer.create,
		MetricInc:        func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:        e.emitAudit,
		Warn:             e.warn,
		Metrics: flows.RegisterMetrics{
			AccountCreationSuccess:   int(MetricAccountCreationSuccess),
			AccountCreationDuplicate: int(MetricAccountCreationDuplicate),
			AccountCreationFailure:   int(MetricAccountCreationFailure),
			SessionCreated:           int(MetricSessionCreated),
			EmailVerificationRequest: int(MetricEmailVerificationRequest),
		},
		Events: flows.RegisterEvents{
			AccountCreationSuccess:   auditEventAccountCreationSuccess,
			AccountCreationFailure:   auditEventAccountCreationFailure,
			AccountCreationDuplicate: auditEventAccountCreationDuplicate,
		},
		Errors: flows.RegisterErrors{
			EngineNotReady: ErrEngineNotReady,
			Validation:     ErrValidation,
			AccountExists:  ErrAccountExists,
		},
	}
}

func (e *Engine) loginFlowDeps(issuer *sessionIssuer) flows.LoginDeps {
	return flows.LoginDeps{
		RequireVerification: e.config.EmailVerification.Required,
		ClientIPFromContext: clientIPFromContext,
		CheckLoginRate: func(ctx context.Context, email, ip string) error {
			return e.failOpen("check login rate", e.limiter.CheckLogin(ctx, email, ip))
		},
		IncrementLoginRate: func(ctx context.Context, email, ip string) error {
			return e.failOpen("count failed login", e.limiter.IncrementLogin(ctx, email, ip))
		},
		ResetLoginRate: e.limiter.ResetLogin,
		VerifyCredentials: func(ctx context.Context, email, password string) (flows.User, error) {
			u, err := e.users.VerifyCredentials(ctx, email, password)
			if err != nil {
				return flows.User{}, mapDirectoryErr(err)
			}
			return flowUser(u), nil
		},
		CreateSession: issuer.create,
		MetricInc:     func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:     e.emitAudit,
		Warn:          e.warn,
		Metrics: flows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
			SessionCreated:   int(MetricSessionCreated),
		},
		Events: flows.LoginEvents{
			LoginSuccess:     auditEventLoginSuccess,
			LoginFailure:     auditEventLoginFailure,
			LoginRateLimited: auditEventLoginRateLimited,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			Validation:         ErrValidation,
			InvalidCredentials: ErrInvalidCredentials,
			LoginRateLimited:   ErrLoginRateLimited,
		},
	}
}

func (e *Engine) credentialRules() flows.CredentialRules {
	return flows.CredentialRules{
		MinPasswordLength: e.config.Password.MinLength,
		MaxPasswordLength: e.config.Password.MaxLength,
	}
}

// failOpen lets a request through when the limiter cannot reach the store.
func (e *Engine) failOpen(op string, err error) error {
	if errors.Is(err, rate.ErrStoreUnavailable) {
		e.warn(op, err)
		return nil
	}
	return err
}

func exists(_ *directory.User, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, directory.ErrUserNotFound):
		return false, nil
	default:
		return false, mapDirectoryErr(err)
	}
}

func validationErr(reason string) error {
	return &flows.ValidationError{Reason: reason, Err: ErrValidation}
}
