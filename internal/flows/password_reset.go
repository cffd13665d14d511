package flows

import (
	"context"
	"fmt"
	"time"
)

// PasswordResetMetrics carries metric IDs needed by the reset flows.
type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
	MailFailure                 int
}

// PasswordResetEvents carries audit event names used by the reset flows.
type PasswordResetEvents struct {
	PasswordResetRequest string
	PasswordResetConfirm string
}

// PasswordResetErrors carries host-level sentinel errors used by the reset flows.
type PasswordResetErrors struct {
	EngineNotReady error
	Validation     error
	TokenInvalid   error
	RateLimited    error
	MailDelivery   error
	Unavailable    error
}

// PasswordResetDeps captures reset dependencies.
type PasswordResetDeps struct {
	TokenTTL time.Duration
	Rules    CredentialRules

	AllowMail        func(ctx context.Context, email string) error
	NewToken         func() (string, error)
	SaveBinding      func(ctx context.Context, token, email, userID string, ttl time.Duration) error
	PeekBinding      func(ctx context.Context, token string) (TokenBinding, error)
	ConsumeBinding   func(ctx context.Context, token string) (TokenBinding, error)
	DeleteBinding    func(ctx context.Context, token string) error
	IsBindingMissing func(error) bool
	Send             func(ctx context.Context, email, token string) error

	FindUserByEmail func(ctx context.Context, email string) (User, error)
	GetUser         func(ctx context.Context, userID string) (User, error)
	SetPassword     func(ctx context.Context, userID, password string) error
	ResetLoginRate  func(ctx context.Context, email string) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(msg string, err error)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.IsBindingMissing == nil {
		deps.IsBindingMissing = func(error) bool { return true }
	}
	if deps.Warn == nil {
		deps.Warn = func(string, error) {}
	}
}

// RunSendPasswordResetEmail binds token to email and mails the reset link.
func RunSendPasswordResetEmail(ctx context.Context, email, userID, token string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.SaveBinding == nil || deps.Send == nil {
		return deps.Errors.EngineNotReady
	}
	if err := CheckEmail(email, deps.Errors.Validation); err != nil {
		return err
	}
	if token == "" {
		return invalid(deps.Errors.Validation, "token is required")
	}

	if err := deps.SaveBinding(ctx, token, email, userID, deps.TokenTTL); err != nil {
		err = fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, userID, email, err, nil)
		return err
	}
	if err := deps.Send(ctx, email, token); err != nil {
		deps.MetricInc(deps.Metrics.MailFailure)
		err = fmt.Errorf("%w: %v", deps.Errors.MailDelivery, err)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, userID, email, err, nil)
		return err
	}

	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, userID, email, nil, nil)
	return nil
}

// RunRequestPasswordReset issues a reset token and email when an account
// exists for email. Unknown emails return nil so the response does not reveal
// which addresses are registered.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.FindUserByEmail == nil || deps.NewToken == nil {
		return deps.Errors.EngineNotReady
	}
	if err := CheckEmail(email, deps.Errors.Validation); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)

	if deps.AllowMail != nil {
		if err := deps.AllowMail(ctx, email); err != nil {
			deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", email, deps.Errors.RateLimited, nil)
			return deps.Errors.RateLimited
		}
	}

	user, err := deps.FindUserByEmail(ctx, email)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", email, err, func() map[string]string {
			return map[string]string{"reason": "unknown_email"}
		})
		return nil
	}

	token, err := deps.NewToken()
	if err != nil {
		return err
	}
	return RunSendPasswordResetEmail(ctx, user.Email, user.UserID, token, deps)
}

// RunVerifyPasswordResetToken returns the email bound to token without
// consuming it.
func RunVerifyPasswordResetToken(ctx context.Context, token string, deps PasswordResetDeps) (string, error) {
	normalizePasswordResetDeps(&deps)

	if deps.PeekBinding == nil {
		return "", deps.Errors.EngineNotReady
	}
	if token == "" {
		return "", deps.Errors.TokenInvalid
	}

	binding, err := deps.PeekBinding(ctx, token)
	if err != nil {
		if deps.IsBindingMissing(err) {
			return "", deps.Errors.TokenInvalid
		}
		return "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	return binding.Email, nil
}

// RunConsumePasswordResetToken deletes token. Consuming an absent token is not
// an error.
func RunConsumePasswordResetToken(ctx context.Context, token string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.DeleteBinding == nil {
		return deps.Errors.EngineNotReady
	}
	if err := deps.DeleteBinding(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	return nil
}

// RunResetPassword consumes token, then sets the new password. The binding is
// taken atomically before the write so concurrent callers cannot both redeem
// it; a failed write restores the binding for its remaining lifetime.
func RunResetPassword(ctx context.Context, token, newPassword string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.ConsumeBinding == nil || deps.SaveBinding == nil || deps.SetPassword == nil ||
		deps.FindUserByEmail == nil || deps.GetUser == nil {
		return deps.Errors.EngineNotReady
	}
	if err := CheckPassword(deps.Rules, newPassword, deps.Errors.Validation); err != nil {
		return err
	}

	fail := func(userID, email string, err error) error {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, userID, email, err, nil)
		return err
	}

	if token == "" {
		return fail("", "", deps.Errors.TokenInvalid)
	}
	binding, err := deps.ConsumeBinding(ctx, token)
	if err != nil {
		if deps.IsBindingMissing(err) {
			return fail("", "", deps.Errors.TokenInvalid)
		}
		return fail("", "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err))
	}

	var user User
	if binding.UserID != "" {
		user, err = deps.GetUser(ctx, binding.UserID)
	} else {
		user, err = deps.FindUserByEmail(ctx, binding.Email)
	}
	if err != nil || user.Email != binding.Email {
		return fail("", binding.Email, deps.Errors.TokenInvalid)
	}

	if err := deps.SetPassword(ctx, user.UserID, newPassword); err != nil {
		restoreResetBinding(ctx, token, binding, deps)
		return fail(user.UserID, user.Email, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err))
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, user.Email); err != nil {
			deps.Warn("reset login rate limit", err)
		}
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, user.UserID, user.Email, nil, nil)
	return nil
}

func restoreResetBinding(ctx context.Context, token string, binding TokenBinding, deps PasswordResetDeps) {
	ttl := deps.TokenTTL
	if !binding.ExpiresAt.IsZero() {
		ttl = time.Until(binding.ExpiresAt)
	}
	if ttl <= 0 {
		return
	}
	if err := deps.SaveBinding(ctx, token, binding.Email, binding.UserID, ttl); err != nil {
		deps.Warn("restore password reset token", err)
	}
}
