package dashauth

import (
	"context"
	"errors"
	"net/http"

	"github.com/pharmalens/dashauth/directory"
	"github.com/pharmalens/dashauth/internal"
	"github.com/pharmalens/dashauth/internal/flows"
	"github.com/pharmalens/dashauth/internal/stores"
)

// SendVerificationEmail issues a fresh verification token for email and mails
// the link. Earlier tokens stay valid until they expire. Sends are throttled
// per address (ErrMailRateLimited) and failures return ErrMailDelivery.
func (e *Engine) SendVerificationEmail(ctx context.Context, email string) error {
	if e == nil || e.verifications == nil {
		return ErrEngineNotReady
	}

	email = directory.NormalizeEmail(email)
	userID := ""
	if u, err := e.users.FindUserByEmail(ctx, email); err == nil {
		userID = u.ID
	}
	return flows.RunSendVerificationEmail(ctx, email, userID, e.emailVerificationFlowDeps(nil))
}

// VerifyEmailToken consumes token and returns the identity it was bound to.
// It does not change the account; see CompleteEmailVerification. Unknown,
// expired and used tokens return ErrTokenInvalid.
func (e *Engine) VerifyEmailToken(ctx context.Context, token string) (*VerificationResult, error) {
	if e == nil || e.verifications == nil {
		return nil, ErrEngineNotReady
	}

	binding, err := flows.RunVerifyEmailToken(ctx, token, e.emailVerificationFlowDeps(nil))
	if err != nil {
		return nil, err
	}

	res := &VerificationResult{Email: binding.Email, UserID: binding.UserID}
	if res.UserID == "" {
		if u, err := e.users.FindUserByEmail(ctx, binding.Email); err == nil {
			res.UserID = u.ID
		}
	}
	return res, nil
}

// ResendVerificationEmail re-sends the verification email for userID. An empty
// email defaults to the account address. Verified accounts get no email.
func (e *Engine) ResendVerificationEmail(ctx context.Context, userID, email string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	return flows.RunResendVerificationEmail(ctx, userID, directory.NormalizeEmail(email), e.emailVerificationFlowDeps(nil))
}

// CompleteEmailVerification consumes token, marks its user verified and signs
// the user in with a fresh session.
func (e *Engine) CompleteEmailVerification(ctx context.Context, w http.ResponseWriter, token string) (*AuthResult, error) {
	if e == nil || e.users == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	issuer := &sessionIssuer{engine: e, w: w}
	user, _, err := flows.RunCompleteEmailVerification(ctx, token, e.emailVerificationFlowDeps(issuer))
	if err != nil {
		if user != nil {
			// Verified but no session; the user can sign in normally.
			return &AuthResult{Principal: principalFrom(*user, flows.SessionView{})}, err
		}
		return nil, err
	}
	return &AuthResult{Principal: issuer.principal(*user)}, nil
}

func (e *Engine) sendVerificationMail(ctx context.Context, email, token string) error {
	msg, err := e.composer.Verification(email, token)
	if err != nil {
		return err
	}
	return e.mailer.Send(ctx, msg)
}

func (e *Engine) emailVerificationFlowDeps(issuer *sessionIssuer) flows.EmailVerificationDeps {
	deps := flows.EmailVerificationDeps{
		TokenTTL: e.config.EmailVerification.TokenTTL,
		AllowMail: func(ctx context.Context, email string) error {
			return e.failOpen("check verification mail rate", e.limiter.AllowMail(ctx, string(stores.KindVerification), email))
		},
		NewToken:    internal.NewToken,
		SaveBinding: e.verifications.Save,
		ConsumeBinding: func(ctx context.Context, token string) (flows.TokenBinding, error) {
			b, err := e.verifications.Consume(ctx, token)
			if err != nil {
				return flows.TokenBinding{}, err
			}
			return flows.TokenBinding{Email: b.Email, UserID: b.UserID}, nil
		},
		IsBindingMissing: isBindingMissing,
		Send:             e.sendVerificationMail,
		GetUser:          e.getFlowUser,
		MarkVerified: func(ctx context.Context, token, userID string) (flows.User, error) {
			u, err := e.users.UpdateUserVerification(ctx, token, userID)
			if err != nil {
				return flows.User{}, mapDirectoryErr(err)
			}
			return flowUser(u), nil
		},
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Metrics: flows.EmailVerificationMetrics{
			EmailVerificationRequest: int(MetricEmailVerificationRequest),
			EmailVerificationSuccess: int(MetricEmailVerificationSuccess),
			EmailVerificationFailure: int(MetricEmailVerificationFailure),
			MailFailure:              int(MetricMailFailure),
			SessionCreated:           int(MetricSessionCreated),
		},
		Events: flows.EmailVerificationEvents{
			EmailVerificationRequest: auditEventEmailVerificationRequest,
			EmailVerificationConfirm: auditEventEmailVerificationConfirm,
		},
		Errors: flows.EmailVerificationErrors{
			EngineNotReady: ErrEngineNotReady,
			Validation:     ErrValidation,
			TokenInvalid:   ErrTokenInvalid,
			RateLimited:    ErrMailRateLimited,
			MailDelivery:   ErrMailDelivery,
			Unavailable:    ErrUnavailable,
			UserNotFound:   ErrUserNotFound,
		},
	}
	if issuer != nil {
		deps.CreateSession = issuer.create
	}
	return deps
}

func isBindingMissing(err error) bool {
	return errors.Is(err, stores.ErrBindingNotFound) || errors.Is(err, stores.ErrBindingCorrupt)
}
