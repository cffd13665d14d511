package flows

import (
	"context"
	"errors"
	"strings"
)

// RegisterInput is the flow-local registration request.
type RegisterInput struct {
	Username   string
	Email      string
	Name       string
	Password   string
	RememberMe bool
}

// NewAccount is what the flow asks the directory to persist.
type NewAccount struct {
	Username          string
	Email             string
	Name              string
	Password          string
	IsVerified        bool
	VerificationToken string
}

// RegisterResult is the flow-local registration response shape.
type RegisterResult struct {
	User                 User
	Session              IssuedSession
	RequiresVerification bool
	VerificationSent     bool
}

// RegisterMetrics carries metric IDs needed by the registration flow.
type RegisterMetrics struct {
	AccountCreationSuccess   int
	AccountCreationDuplicate int
	AccountCreationFailure   int
	SessionCreated           int
	EmailVerificationRequest int
}

// RegisterEvents carries audit event names used by the registration flow.
type RegisterEvents struct {
	AccountCreationSuccess   string
	AccountCreationFailure   string
	AccountCreationDuplicate string
}

// RegisterErrors carries host-level sentinel errors used by the registration flow.
type RegisterErrors struct {
	EngineNotReady error
	Validation     error
	AccountExists  error
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	Rules               CredentialRules
	RequireVerification bool

	EmailExists      func(ctx context.Context, email string) (bool, error)
	UsernameExists   func(ctx context.Context, username string) (bool, error)
	NewToken         func() (string, error)
	CreateUser       func(ctx context.Context, account NewAccount) (User, error)
	SendVerification func(ctx context.Context, email, token string) error
	CreateSession    func(ctx context.Context, user User, rememberMe bool) (IssuedSession, error)

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(msg string, err error)

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister validates input, rejects duplicate email or username, creates
// the account and issues a session. When verification is required the account
// starts unverified and a verification email is sent. A failed send does not
// fail the registration; the result reports VerificationSent=false.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) (*RegisterResult, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}
	if deps.EmailExists == nil || deps.UsernameExists == nil || deps.CreateUser == nil || deps.CreateSession == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.RequireVerification && (deps.NewToken == nil || deps.SendVerification == nil) {
		return nil, deps.Errors.EngineNotReady
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)

	if err := validateRegistration(in, deps); err != nil {
		deps.MetricInc(deps.Metrics.AccountCreationFailure)
		deps.EmitAudit(ctx, deps.Events.AccountCreationFailure, false, "", in.Email, err, func() map[string]string {
			return map[string]string{"reason": ReasonOf(err)}
		})
		return nil, err
	}

	if exists, err := deps.EmailExists(ctx, in.Email); err != nil {
		return nil, err
	} else if exists {
		return nil, duplicate(ctx, deps, in.Email, "email")
	}
	if exists, err := deps.UsernameExists(ctx, in.Username); err != nil {
		return nil, err
	} else if exists {
		return nil, duplicate(ctx, deps, in.Email, "username")
	}

	account := NewAccount{
		Username:   in.Username,
		Email:      in.Email,
		Name:       in.Name,
		Password:   in.Password,
		IsVerified: !deps.RequireVerification,
	}
	if deps.RequireVerification {
		token, err := deps.NewToken()
		if err != nil {
			return nil, err
		}
		account.VerificationToken = token
	}

	user, err := deps.CreateUser(ctx, account)
	if err != nil {
		deps.MetricInc(deps.Metrics.AccountCreationFailure)
		deps.EmitAudit(ctx, deps.Events.AccountCreationFailure, false, "", in.Email, err, nil)
		return nil, err
	}

	result := &RegisterResult{
		User:                 user,
		RequiresVerification: deps.RequireVerification && !user.IsVerified,
	}

	if account.VerificationToken != "" {
		deps.MetricInc(deps.Metrics.EmailVerificationRequest)
		if err := deps.SendVerification(ctx, user.Email, account.VerificationToken); err != nil {
			deps.Warn("send verification email after registration", err)
		} else {
			result.VerificationSent = true
		}
	}

	sess, err := deps.CreateSession(ctx, user, in.RememberMe)
	if err != nil {
		return nil, err
	}
	result.Session = sess
	deps.MetricInc(deps.Metrics.SessionCreated)

	deps.MetricInc(deps.Metrics.AccountCreationSuccess)
	deps.EmitAudit(ctx, deps.Events.AccountCreationSuccess, true, user.UserID, user.Email, nil, nil)

	return result, nil
}

func validateRegistration(in RegisterInput, deps RegisterDeps) error {
	if in.Username == "" {
		return invalid(deps.Errors.Validation, "username is required")
	}
	if err := CheckEmail(in.Email, deps.Errors.Validation); err != nil {
		return err
	}
	return CheckPassword(deps.Rules, in.Password, deps.Errors.Validation)
}

func duplicate(ctx context.Context, deps RegisterDeps, email, field string) error {
	deps.MetricInc(deps.Metrics.AccountCreationDuplicate)
	deps.EmitAudit(ctx, deps.Events.AccountCreationDuplicate, false, "", email, deps.Errors.AccountExists, func() map[string]string {
		return map[string]string{"field": field}
	})
	return deps.Errors.AccountExists
}

// ChangePasswordMetrics carries metric IDs needed by the password change flow.
type ChangePasswordMetrics struct {
	PasswordChangeSuccess    int
	PasswordChangeInvalidOld int
}

// ChangePasswordEvents carries audit event names used by the password change flow.
type ChangePasswordEvents struct {
	PasswordChangeSuccess    string
	PasswordChangeInvalidOld string
	PasswordChangeFailure    string
}

// ChangePasswordErrors carries host-level sentinel errors used by the password change flow.
type ChangePasswordErrors struct {
	EngineNotReady    error
	Validation        error
	IncorrectPassword error
}

// ChangePasswordDeps captures password change dependencies.
type ChangePasswordDeps struct {
	Rules CredentialRules

	// ChangePassword re-verifies current and replaces the hash atomically.
	ChangePassword func(ctx context.Context, userID, current, next string) error
	// MapError translates store and directory errors to host sentinels.
	MapError func(error) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics ChangePasswordMetrics
	Events  ChangePasswordEvents
	Errors  ChangePasswordErrors
}

// RunChangePassword replaces the user's password after re-verifying the
// current one. A wrong current password leaves the account untouched.
func RunChangePassword(ctx context.Context, userID, current, next string, deps ChangePasswordDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.MapError == nil {
		deps.MapError = func(err error) error { return err }
	}
	if deps.ChangePassword == nil {
		return deps.Errors.EngineNotReady
	}

	if current == "" {
		return invalid(deps.Errors.Validation, "current password is required")
	}
	if err := CheckPassword(deps.Rules, next, deps.Errors.Validation); err != nil {
		return err
	}
	if current == next {
		return invalid(deps.Errors.Validation, "new password must be different from the current password")
	}

	if err := deps.ChangePassword(ctx, userID, current, next); err != nil {
		mapped := deps.MapError(err)
		if errors.Is(mapped, deps.Errors.IncorrectPassword) {
			deps.MetricInc(deps.Metrics.PasswordChangeInvalidOld)
			deps.EmitAudit(ctx, deps.Events.PasswordChangeInvalidOld, false, userID, "", mapped, nil)
			return mapped
		}
		deps.EmitAudit(ctx, deps.Events.PasswordChangeFailure, false, userID, "", mapped, nil)
		return mapped
	}

	deps.MetricInc(deps.Metrics.PasswordChangeSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordChangeSuccess, true, userID, "", nil, nil)
	return nil
}
