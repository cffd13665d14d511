package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TokenBinding is the identity a verification or reset token unlocks.
type TokenBinding struct {
	Email  string
	UserID string

	// ExpiresAt is zero when the store does not report it.
	ExpiresAt time.Time
}

// EmailVerificationMetrics carries metric IDs needed by the verification flows.
type EmailVerificationMetrics struct {
	EmailVerificationRequest int
	EmailVerificationSuccess int
	EmailVerificationFailure int
	MailFailure              int
	SessionCreated           int
}

// EmailVerificationEvents carries audit event names used by the verification flows.
type EmailVerificationEvents struct {
	EmailVerificationRequest string
	EmailVerificationConfirm string
}

// EmailVerificationErrors carries host-level sentinel errors used by the verification flows.
type EmailVerificationErrors struct {
	EngineNotReady error
	Validation     error
	TokenInvalid   error
	RateLimited    error
	MailDelivery   error
	Unavailable    error
	UserNotFound   error
}

// EmailVerificationDeps captures verification dependencies.
type EmailVerificationDeps struct {
	TokenTTL time.Duration

	AllowMail      func(ctx context.Context, email string) error
	NewToken       func() (string, error)
	SaveBinding    func(ctx context.Context, token, email, userID string, ttl time.Duration) error
	ConsumeBinding func(ctx context.Context, token string) (TokenBinding, error)
	// IsBindingMissing distinguishes "unknown or expired" from store failures.
	IsBindingMissing func(error) bool
	Send             func(ctx context.Context, email, token string) error

	GetUser func(ctx context.Context, userID string) (User, error)
	// MarkVerified consumes token (or verifies userID directly) and returns
	// the verified user. A missing binding or user must be reported as
	// Errors.UserNotFound.
	MarkVerified  func(ctx context.Context, token, userID string) (User, error)
	CreateSession func(ctx context.Context, user User, rememberMe bool) (IssuedSession, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics EmailVerificationMetrics
	Events  EmailVerificationEvents
	Errors  EmailVerificationErrors
}

func normalizeEmailVerificationDeps(deps *EmailVerificationDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.IsBindingMissing == nil {
		deps.IsBindingMissing = func(error) bool { return true }
	}
}

// RunSendVerificationEmail issues a fresh token bound to email (and userID
// when known) and mails the verification link. Earlier tokens are not revoked.
func RunSendVerificationEmail(ctx context.Context, email, userID string, deps EmailVerificationDeps) error {
	normalizeEmailVerificationDeps(&deps)

	if deps.NewToken == nil || deps.SaveBinding == nil || deps.Send == nil {
		return deps.Errors.EngineNotReady
	}
	if err := CheckEmail(email, deps.Errors.Validation); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.EmailVerificationRequest)
	fail := func(err error) error {
		deps.EmitAudit(ctx, deps.Events.EmailVerificationRequest, false, userID, email, err, nil)
		return err
	}

	if deps.AllowMail != nil {
		if err := deps.AllowMail(ctx, email); err != nil {
			return fail(deps.Errors.RateLimited)
		}
	}

	token, err := deps.NewToken()
	if err != nil {
		return fail(err)
	}
	if err := deps.SaveBinding(ctx, token, email, userID, deps.TokenTTL); err != nil {
		return fail(fmt.Errorf("%w: %v", deps.Errors.Unavailable, err))
	}
	if err := deps.Send(ctx, email, token); err != nil {
		deps.MetricInc(deps.Metrics.MailFailure)
		return fail(fmt.Errorf("%w: %v", deps.Errors.MailDelivery, err))
	}

	deps.EmitAudit(ctx, deps.Events.EmailVerificationRequest, true, userID, email, nil, nil)
	return nil
}

// RunVerifyEmailToken consumes token and returns the identity it was bound to.
// Unknown, expired and already-used tokens all yield Errors.TokenInvalid.
func RunVerifyEmailToken(ctx context.Context, token string, deps EmailVerificationDeps) (*TokenBinding, error) {
	normalizeEmailVerificationDeps(&deps)

	if deps.ConsumeBinding == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if token == "" {
		deps.MetricInc(deps.Metrics.EmailVerificationFailure)
		return nil, deps.Errors.TokenInvalid
	}

	binding, err := deps.ConsumeBinding(ctx, token)
	if err != nil {
		deps.MetricInc(deps.Metrics.EmailVerificationFailure)
		mapped := deps.Errors.TokenInvalid
		if !deps.IsBindingMissing(err) {
			mapped = fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		}
		deps.EmitAudit(ctx, deps.Events.EmailVerificationConfirm, false, "", "", mapped, nil)
		return nil, mapped
	}

	deps.MetricInc(deps.Metrics.EmailVerificationSuccess)
	deps.EmitAudit(ctx, deps.Events.EmailVerificationConfirm, true, binding.UserID, binding.Email, nil, nil)
	return &binding, nil
}

// RunResendVerificationEmail re-issues a verification email for userID. An
// empty email defaults to the account's address; a different address is
// rejected. Already-verified accounts get no email and no error.
func RunResendVerificationEmail(ctx context.Context, userID, email string, deps EmailVerificationDeps) error {
	normalizeEmailVerificationDeps(&deps)

	if deps.GetUser == nil {
		return deps.Errors.EngineNotReady
	}

	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		return deps.Errors.UserNotFound
	}
	if email == "" {
		email = user.Email
	}
	if email != user.Email {
		return invalid(deps.Errors.Validation, "email does not match the account")
	}
	if user.IsVerified {
		return nil
	}

	return RunSendVerificationEmail(ctx, email, user.UserID, deps)
}

// RunCompleteEmailVerification consumes token, marks its user verified and
// issues a fresh session for them.
func RunCompleteEmailVerification(ctx context.Context, token string, deps EmailVerificationDeps) (*User, IssuedSession, error) {
	normalizeEmailVerificationDeps(&deps)

	if deps.MarkVerified == nil || deps.CreateSession == nil {
		return nil, IssuedSession{}, deps.Errors.EngineNotReady
	}
	if token == "" {
		deps.MetricInc(deps.Metrics.EmailVerificationFailure)
		return nil, IssuedSession{}, deps.Errors.TokenInvalid
	}

	user, err := deps.MarkVerified(ctx, token, "")
	if err != nil {
		deps.MetricInc(deps.Metrics.EmailVerificationFailure)
		mapped := err
		if errors.Is(err, deps.Errors.UserNotFound) {
			mapped = deps.Errors.TokenInvalid
		}
		deps.EmitAudit(ctx, deps.Events.EmailVerificationConfirm, false, "", "", mapped, nil)
		return nil, IssuedSession{}, mapped
	}

	deps.MetricInc(deps.Metrics.EmailVerificationSuccess)
	deps.EmitAudit(ctx, deps.Events.EmailVerificationConfirm, true, user.UserID, user.Email, nil, nil)

	sess, err := deps.CreateSession(ctx, user, false)
	if err != nil {
		return &user, IssuedSession{}, err
	}
	deps.MetricInc(deps.Metrics.SessionCreated)
	return &user, sess, nil
}
