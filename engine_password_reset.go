package dashauth

import (
	"context"

	"github.com/pharmalens/dashauth/directory"
	"github.com/pharmalens/dashauth/internal"
	"github.com/pharmalens/dashauth/internal/flows"
	"github.com/pharmalens/dashauth/internal/stores"
)

// SendPasswordResetEmail binds token to email for PasswordReset.TokenTTL and
// mails the reset link. Callers that want the Engine to mint the token use
// RequestPasswordReset.
func (e *Engine) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	if e == nil || e.resets == nil {
		return ErrEngineNotReady
	}

	email = directory.NormalizeEmail(email)
	userID := ""
	if u, err := e.users.FindUserByEmail(ctx, email); err == nil {
		userID = u.ID
	}
	return flows.RunSendPasswordResetEmail(ctx, email, userID, token, e.passwordResetFlowDeps())
}

// VerifyPasswordResetToken returns the email bound to token without consuming
// it, so a reset form can be shown before the new password is submitted.
func (e *Engine) VerifyPasswordResetToken(ctx context.Context, token string) (string, error) {
	if e == nil || e.resets == nil {
		return "", ErrEngineNotReady
	}
	return flows.RunVerifyPasswordResetToken(ctx, token, e.passwordResetFlowDeps())
}

// ConsumePasswordResetToken deletes token. Call it only after the password
// has been changed. Consuming an absent token is not an error.
func (e *Engine) ConsumePasswordResetToken(ctx context.Context, token string) error {
	if e == nil || e.resets == nil {
		return ErrEngineNotReady
	}
	return flows.RunConsumePasswordResetToken(ctx, token, e.passwordResetFlowDeps())
}

// RequestPasswordReset mints a reset token and mails it when an account
// exists for email. Unknown addresses return nil so callers cannot probe
// which emails are registered.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.resets == nil || e.users == nil {
		return ErrEngineNotReady
	}
	return flows.RunRequestPasswordReset(ctx, directory.NormalizeEmail(email), e.passwordResetFlowDeps())
}

// ResetPassword consumes token and stores newPassword. Concurrent calls with
// the same token succeed at most once. It also clears the login failure counter for the account.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.resets == nil || e.users == nil {
		return ErrEngineNotReady
	}
	return flows.RunResetPassword(ctx, token, newPassword, e.passwordResetFlowDeps())
}

func (e *Engine) sendPasswordResetMail(ctx context.Context, email, token string) error {
	msg, err := e.composer.PasswordReset(email, token)
	if err != nil {
		return err
	}
	return e.mailer.Send(ctx, msg)
}

func (e *Engine) passwordResetFlowDeps() flows.PasswordResetDeps {
	return flows.PasswordResetDeps{
		TokenTTL: e.config.PasswordReset.TokenTTL,
		Rules:    e.credentialRules(),
		AllowMail: func(ctx context.Context, email string) error {
			return e.failOpen("check reset mail rate", e.limiter.AllowMail(ctx, string(stores.KindPasswordReset), email))
		},
		NewToken:    internal.NewToken,
		SaveBinding: e.resets.Save,
		PeekBinding: func(ctx context.Context, token string) (flows.TokenBinding, error) {
			b, err := e.resets.Peek(ctx, token)
			if err != nil {
				return flows.TokenBinding{}, err
			}
			return flows.TokenBinding{Email: b.Email, UserID: b.UserID}, nil
		},
		ConsumeBinding: func(ctx context.Context, token string) (flows.TokenBinding, error) {
			b, err := e.resets.Consume(ctx, token)
			if err != nil {
				return flows.TokenBinding{}, err
			}
			return flows.TokenBinding{Email: b.Email, UserID: b.UserID, ExpiresAt: b.ExpiresAt}, nil
		},
		DeleteBinding:    e.resets.Delete,
		IsBindingMissing: isBindingMissing,
		Send:             e.sendPasswordResetMail,
		FindUserByEmail:  e.findFlowUserByEmail,
		GetUser:          e.getFlowUser,
		SetPassword: func(ctx context.Context, userID, password string) error {
			return mapDirectoryErr(e.users.SetPassword(ctx, userID, password))
		},
		ResetLoginRate: e.limiter.ResetLogin,
		MetricInc:      func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:      e.emitAudit,
		Warn:           e.warn,
		Metrics: flows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
			MailFailure:                 int(MetricMailFailure),
		},
		Events: flows.PasswordResetEvents{
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
		},
		Errors: flows.PasswordResetErrors{
			EngineNotReady: ErrEngineNotReady,
			Validation:     ErrValidation,
			TokenInvalid:   ErrTokenInvalid,
			RateLimited:    ErrMailRateLimited,
			MailDelivery:   ErrMailDelivery,
			Unavailable:    ErrUnavailable,
		},
	}
}
