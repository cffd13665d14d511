package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errNotReady     = errors.New("not ready")
	errValidation   = errors.New("validation")
	errInvalidCreds = errors.New("invalid email or password")
	errRateLimited  = errors.New("rate limited")
	errExists       = errors.New("exists")
	errIncorrect    = errors.New("incorrect")
	errUnauth       = errors.New("unauthenticated")
	errNoUser       = errors.New("no user")
	errTokenInvalid = errors.New("invalid or expired token")
	errMail         = errors.New("mail delivery")
	errUnavailable  = errors.New("unavailable")
	errMissing      = errors.New("binding missing")
)

type recordedEvent struct {
	name    string
	success bool
}

type auditRecorder struct {
	events []recordedEvent
}

func (r *auditRecorder) emit(_ context.Context, event string, success bool, _, _ string, _ error, _ func() map[string]string) {
	r.events = append(r.events, recordedEvent{name: event, success: success})
}

func (r *auditRecorder) last() recordedEvent {
	if len(r.events) == 0 {
		return recordedEvent{}
	}
	return r.events[len(r.events)-1]
}

var alice = User{UserID: "u-1", Email: "a@x.com", Username: "alice", Role: "user"}

func loginDeps(user User, verifyErr error) (LoginDeps, *auditRecorder, *int) {
	rec := &auditRecorder{}
	failures := 0
	return LoginDeps{
		RequireVerification: true,
		CheckLoginRate: func(context.Context, string, string) error {
			if failures >= 3 {
				return errRateLimited
			}
			return nil
		},
		IncrementLoginRate: func(context.Context, string, string) error {
			failures++
			return nil
		},
		ResetLoginRate: func(context.Context, string) error {
			failures = 0
			return nil
		},
		VerifyCredentials: func(context.Context, string, string) (User, error) {
			return user, verifyErr
		},
		CreateSession: func(_ context.Context, u User, _ bool) (IssuedSession, error) {
			return IssuedSession{SessionID: "sid", UserID: u.UserID}, nil
		},
		EmitAudit: rec.emit,
		Events:    LoginEvents{LoginSuccess: "login_success", LoginFailure: "login_failure", LoginRateLimited: "login_rate_limited"},
		Errors:    LoginErrors{EngineNotReady: errNotReady, Validation: errValidation, InvalidCredentials: errInvalidCreds, LoginRateLimited: errRateLimited},
	}, rec, &failures
}

func TestRunLoginUnverifiedStillGetsSession(t *testing.T) {
	deps, rec, _ := loginDeps(alice, nil)

	res, err := RunLogin(context.Background(), "a@x.com", "password1", false, deps)
	require.NoError(t, err)
	assert.True(t, res.RequiresVerification)
	assert.Equal(t, "sid", res.Session.SessionID)
	assert.Equal(t, recordedEvent{"login_success", true}, rec.last())

	verified := alice
	verified.IsVerified = true
	deps, _, _ = loginDeps(verified, nil)
	res, err = RunLogin(context.Background(), "a@x.com", "password1", false, deps)
	require.NoError(t, err)
	assert.False(t, res.RequiresVerification)
}

func TestRunLoginRateLimitsAfterFailures(t *testing.T) {
	deps, rec, failures := loginDeps(User{}, errors.New("nope"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := RunLogin(ctx, "a@x.com", "wrong", false, deps)
		assert.ErrorIs(t, err, errInvalidCreds)
	}
	assert.Equal(t, 3, *failures)

	_, err := RunLogin(ctx, "a@x.com", "wrong", false, deps)
	assert.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, recordedEvent{"login_rate_limited", false}, rec.last())
}

func TestRunLoginValidation(t *testing.T) {
	deps, _, _ := loginDeps(alice, nil)

	_, err := RunLogin(context.Background(), "", "pw", false, deps)
	assert.ErrorIs(t, err, errValidation)
	assert.Equal(t, "email and password are required", ReasonOf(err))

	deps.CreateSession = nil
	_, err = RunLogin(context.Background(), "a@x.com", "pw", false, deps)
	assert.ErrorIs(t, err, errNotReady)
}

func registerDeps(t *testing.T) (*RegisterDeps, *[]NewAccount, *[]string) {
	t.Helper()
	var created []NewAccount
	var sent []string
	deps := &RegisterDeps{
		Rules:               CredentialRules{MinPasswordLength: 8},
		RequireVerification: true,
		EmailExists:         func(_ context.Context, email string) (bool, error) { return email == "taken@x.com", nil },
		UsernameExists:      func(_ context.Context, name string) (bool, error) { return name == "taken", nil },
		NewToken:            func() (string, error) { return "tok", nil },
		CreateUser: func(_ context.Context, a NewAccount) (User, error) {
			created = append(created, a)
			return User{UserID: "u-new", Email: a.Email, Username: a.Username, IsVerified: a.IsVerified}, nil
		},
		SendVerification: func(_ context.Context, email, token string) error {
			sent = append(sent, email+"|"+token)
			return nil
		},
		CreateSession: func(_ context.Context, u User, _ bool) (IssuedSession, error) {
			return IssuedSession{SessionID: "sid", UserID: u.UserID}, nil
		},
		Errors: RegisterErrors{EngineNotReady: errNotReady, Validation: errValidation, AccountExists: errExists},
	}
	return deps, &created, &sent
}

func TestRunRegisterRequiresVerification(t *testing.T) {
	deps, created, sent := registerDeps(t)

	res, err := RunRegister(context.Background(), RegisterInput{Username: " alice ", Email: "a@x.com", Password: "password1"}, *deps)
	require.NoError(t, err)

	require.Len(t, *created, 1)
	assert.Equal(t, "alice", (*created)[0].Username)
	assert.False(t, (*created)[0].IsVerified)
	assert.Equal(t, "tok", (*created)[0].VerificationToken)
	assert.Equal(t, []string{"a@x.com|tok"}, *sent)
	assert.True(t, res.RequiresVerification)
	assert.True(t, res.VerificationSent)
	assert.Equal(t, "sid", res.Session.SessionID)
}

func TestRunRegisterWithoutVerification(t *testing.T) {
	deps, created, sent := registerDeps(t)
	deps.RequireVerification = false

	res, err := RunRegister(context.Background(), RegisterInput{Username: "alice", Email: "a@x.com", Password: "password1"}, *deps)
	require.NoError(t, err)
	assert.True(t, (*created)[0].IsVerified)
	assert.Empty(t, (*created)[0].VerificationToken)
	assert.Empty(t, *sent)
	assert.False(t, res.RequiresVerification)
}

func TestRunRegisterMailFailureDoesNotFail(t *testing.T) {
	deps, _, _ := registerDeps(t)
	deps.SendVerification = func(context.Context, string, string) error { return errors.New("smtp down") }

	res, err := RunRegister(context.Background(), RegisterInput{Username: "alice", Email: "a@x.com", Password: "password1"}, *deps)
	require.NoError(t, err)
	assert.False(t, res.VerificationSent)
}

func TestRunRegisterRejects(t *testing.T) {
	deps, created, _ := registerDeps(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		in     RegisterInput
		err    error
		reason string
	}{
		{"missing username", RegisterInput{Email: "a@x.com", Password: "password1"}, errValidation, "username is required"},
		{"bad email", RegisterInput{Username: "a", Email: "not-an-email", Password: "password1"}, errValidation, "email address is invalid"},
		{"short password", RegisterInput{Username: "a", Email: "a@x.com", Password: "short"}, errValidation, "password must be at least 8 characters"},
		{"duplicate email", RegisterInput{Username: "a", Email: "taken@x.com", Password: "password1"}, errExists, ""},
		{"duplicate username", RegisterInput{Username: "taken", Email: "a@x.com", Password: "password1"}, errExists, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RunRegister(ctx, tc.in, *deps)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, tc.reason, ReasonOf(err))
		})
	}
	assert.Empty(t, *created)
}

func TestRunChangePassword(t *testing.T) {
	rec := &auditRecorder{}
	stored := "old-password"
	deps := ChangePasswordDeps{
		Rules: CredentialRules{MinPasswordLength: 8},
		ChangePassword: func(_ context.Context, _ string, current, next string) error {
			if current != stored {
				return errIncorrect
			}
			stored = next
			return nil
		},
		EmitAudit: rec.emit,
		Events:    ChangePasswordEvents{PasswordChangeSuccess: "ok", PasswordChangeInvalidOld: "invalid_old"},
		Errors:    ChangePasswordErrors{EngineNotReady: errNotReady, Validation: errValidation, IncorrectPassword: errIncorrect},
	}
	ctx := context.Background()

	assert.ErrorIs(t, RunChangePassword(ctx, "u-1", "wrong", "newpassword1", deps), errIncorrect)
	assert.Equal(t, "old-password", stored)
	assert.Equal(t, recordedEvent{"invalid_old", false}, rec.last())

	assert.ErrorIs(t, RunChangePassword(ctx, "u-1", "old-password", "short", deps), errValidation)
	assert.ErrorIs(t, RunChangePassword(ctx, "u-1", "old-password", "old-password", deps), errValidation)

	require.NoError(t, RunChangePassword(ctx, "u-1", "old-password", "newpassword1", deps))
	assert.Equal(t, "newpassword1", stored)
	assert.Equal(t, recordedEvent{"ok", true}, rec.last())
}

func TestRunValidate(t *testing.T) {
	now := time.Now()
	deps := ValidateDeps{
		GetSession: func(_ context.Context, id string) (SessionView, error) {
			switch id {
			case "live":
				return SessionView{SessionID: id, UserID: "u-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}, nil
			case "orphan":
				return SessionView{SessionID: id, UserID: "gone", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}, nil
			}
			return SessionView{}, errors.New("not found")
		},
		GetUser: func(_ context.Context, id string) (User, error) {
			if id == "u-1" {
				return alice, nil
			}
			return User{}, errors.New("not found")
		},
		Errors: ValidateErrors{EngineNotReady: errNotReady, Unauthenticated: errUnauth, UserNotFound: errNoUser},
	}
	ctx := context.Background()

	v, err := RunValidate(ctx, "live", deps)
	require.NoError(t, err)
	assert.Equal(t, alice, v.User)

	_, err = RunValidate(ctx, "", deps)
	assert.ErrorIs(t, err, errUnauth)
	_, err = RunValidate(ctx, "expired", deps)
	assert.ErrorIs(t, err, errUnauth)
	_, err = RunValidate(ctx, "orphan", deps)
	assert.ErrorIs(t, err, errNoUser)
}

func TestNeedsRefresh(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := SessionView{CreatedAt: created, ExpiresAt: created.Add(24 * time.Hour)}

	assert.False(t, NeedsRefresh(sess, 0.5, created.Add(11*time.Hour)))
	assert.True(t, NeedsRefresh(sess, 0.5, created.Add(13*time.Hour)))
	assert.False(t, NeedsRefresh(sess, 0, created.Add(23*time.Hour)))
}

func TestRunRefreshIfStale(t *testing.T) {
	created := time.Now().Add(-20 * time.Hour)
	stale := SessionView{SessionID: "old", UserID: "u-1", CreatedAt: created, ExpiresAt: created.Add(24 * time.Hour)}
	calls := 0
	deps := RefreshDeps{
		Threshold: 0.5,
		RefreshSession: func(_ context.Context, id string) (SessionView, error) {
			calls++
			now := time.Now()
			return SessionView{SessionID: "new", UserID: "u-1", CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour)}, nil
		},
	}

	got, err := RunRefreshIfStale(context.Background(), stale, deps)
	require.NoError(t, err)
	assert.Equal(t, "new", got.SessionID)

	got, err = RunRefreshIfStale(context.Background(), got, deps)
	require.NoError(t, err)
	assert.Equal(t, "new", got.SessionID)
	assert.Equal(t, 1, calls, "fresh session is not refreshed again")

	deps.RefreshSession = func(context.Context, string) (SessionView, error) { return SessionView{}, errUnavailable }
	got, err = RunRefreshIfStale(context.Background(), stale, deps)
	assert.Error(t, err)
	assert.Equal(t, "old", got.SessionID)
}

type bindingFake struct {
	bindings map[string]TokenBinding
}

func (b *bindingFake) save(_ context.Context, token, email, userID string, _ time.Duration) error {
	b.bindings[token] = TokenBinding{Email: email, UserID: userID}
	return nil
}

func (b *bindingFake) peek(_ context.Context, token string) (TokenBinding, error) {
	v, ok := b.bindings[token]
	if !ok {
		return TokenBinding{}, errMissing
	}
	return v, nil
}

func (b *bindingFake) consume(ctx context.Context, token string) (TokenBinding, error) {
	v, err := b.peek(ctx, token)
	delete(b.bindings, token)
	return v, err
}

func (b *bindingFake) delete(_ context.Context, token string) error {
	delete(b.bindings, token)
	return nil
}

func TestVerificationTokenSingleUse(t *testing.T) {
	store := &bindingFake{bindings: map[string]TokenBinding{}}
	var sentTokens []string
	n := 0
	deps := EmailVerificationDeps{
		TokenTTL: 24 * time.Hour,
		NewToken: func() (string, error) {
			n++
			return "tok-" + string(rune('0'+n)), nil
		},
		SaveBinding:      store.save,
		ConsumeBinding:   store.consume,
		IsBindingMissing: func(err error) bool { return errors.Is(err, errMissing) },
		Send: func(_ context.Context, _ string, token string) error {
			sentTokens = append(sentTokens, token)
			return nil
		},
		Errors: EmailVerificationErrors{EngineNotReady: errNotReady, Validation: errValidation, TokenInvalid: errTokenInvalid, RateLimited: errRateLimited, MailDelivery: errMail, Unavailable: errUnavailable, UserNotFound: errNoUser},
	}
	ctx := context.Background()

	require.NoError(t, RunSendVerificationEmail(ctx, "a@x.com", "u-1", deps))
	require.Len(t, sentTokens, 1)

	binding, err := RunVerifyEmailToken(ctx, sentTokens[0], deps)
	require.NoError(t, err)
	assert.Equal(t, TokenBinding{Email: "a@x.com", UserID: "u-1"}, *binding)

	_, err = RunVerifyEmailToken(ctx, sentTokens[0], deps)
	assert.ErrorIs(t, err, errTokenInvalid)
}

func TestSendVerificationReportsMailFailure(t *testing.T) {
	store := &bindingFake{bindings: map[string]TokenBinding{}}
	deps := EmailVerificationDeps{
		NewToken:    func() (string, error) { return "tok", nil },
		SaveBinding: store.save,
		Send:        func(context.Context, string, string) error { return errors.New("smtp down") },
		AllowMail:   func(context.Context, string) error { return nil },
		Errors:      EmailVerificationErrors{Validation: errValidation, MailDelivery: errMail, RateLimited: errRateLimited},
	}

	err := RunSendVerificationEmail(context.Background(), "a@x.com", "", deps)
	assert.ErrorIs(t, err, errMail)

	deps.AllowMail = func(context.Context, string) error { return errors.New("limited") }
	err = RunSendVerificationEmail(context.Background(), "a@x.com", "", deps)
	assert.ErrorIs(t, err, errRateLimited)
}

func TestResendVerification(t *testing.T) {
	sent := 0
	deps := EmailVerificationDeps{
		NewToken:    func() (string, error) { return "tok", nil },
		SaveBinding: func(context.Context, string, string, string, time.Duration) error { return nil },
		Send: func(context.Context, string, string) error {
			sent++
			return nil
		},
		GetUser: func(_ context.Context, id string) (User, error) {
			switch id {
			case "u-1":
				return alice, nil
			case "u-verified":
				return User{UserID: id, Email: "v@x.com", IsVerified: true}, nil
			}
			return User{}, errors.New("not found")
		},
		Errors: EmailVerificationErrors{Validation: errValidation, UserNotFound: errNoUser},
	}
	ctx := context.Background()

	require.NoError(t, RunResendVerificationEmail(ctx, "u-1", "", deps))
	assert.Equal(t, 1, sent)
	assert.ErrorIs(t, RunResendVerificationEmail(ctx, "u-1", "b@x.com", deps), errValidation)
	assert.ErrorIs(t, RunResendVerificationEmail(ctx, "missing", "", deps), errNoUser)
	require.NoError(t, RunResendVerificationEmail(ctx, "u-verified", "", deps))
	assert.Equal(t, 1, sent, "verified accounts get no email")
}

func resetDeps(store *bindingFake, passwords map[string]string) PasswordResetDeps {
	return PasswordResetDeps{
		TokenTTL:         24 * time.Hour,
		Rules:            CredentialRules{MinPasswordLength: 8},
		NewToken:         func() (string, error) { return "reset-tok", nil },
		SaveBinding:      store.save,
		PeekBinding:      store.peek,
		ConsumeBinding:   store.consume,
		DeleteBinding:    store.delete,
		IsBindingMissing: func(err error) bool { return errors.Is(err, errMissing) },
		Send:             func(context.Context, string, string) error { return nil },
		FindUserByEmail: func(_ context.Context, email string) (User, error) {
			if email == alice.Email {
				return alice, nil
			}
			return User{}, errors.New("not found")
		},
		GetUser: func(_ context.Context, id string) (User, error) {
			if id == alice.UserID {
				return alice, nil
			}
			return User{}, errors.New("not found")
		},
		SetPassword: func(_ context.Context, id, pw string) error {
			passwords[id] = pw
			return nil
		},
		Errors: PasswordResetErrors{EngineNotReady: errNotReady, Validation: errValidation, TokenInvalid: errTokenInvalid, RateLimited: errRateLimited, MailDelivery: errMail, Unavailable: errUnavailable},
	}
}

func TestPasswordResetLifecycle(t *testing.T) {
	store := &bindingFake{bindings: map[string]TokenBinding{}}
	passwords := map[string]string{}
	deps := resetDeps(store, passwords)
	ctx := context.Background()

	require.NoError(t, RunSendPasswordResetEmail(ctx, "a@x.com", "", "tok", deps))

	email, err := RunVerifyPasswordResetToken(ctx, "tok", deps)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", email)

	email, err = RunVerifyPasswordResetToken(ctx, "tok", deps)
	require.NoError(t, err, "verify does not consume")
	assert.Equal(t, "a@x.com", email)

	require.NoError(t, RunConsumePasswordResetToken(ctx, "tok", deps))
	_, err = RunVerifyPasswordResetToken(ctx, "tok", deps)
	assert.ErrorIs(t, err, errTokenInvalid)
	require.NoError(t, RunConsumePasswordResetToken(ctx, "tok", deps), "consume is idempotent")
}

func TestRequestPasswordResetIsEnumerationSafe(t *testing.T) {
	store := &bindingFake{bindings: map[string]TokenBinding{}}
	deps := resetDeps(store, map[string]string{})
	ctx := context.Background()

	require.NoError(t, RunRequestPasswordReset(ctx, "ghost@x.com", deps))
	assert.Empty(t, store.bindings)

	require.NoError(t, RunRequestPasswordReset(ctx, "a@x.com", deps))
	assert.Equal(t, TokenBinding{Email: "a@x.com", UserID: "u-1"}, store.bindings["reset-tok"])
}

func TestRunResetPassword(t *testing.T) {
	store := &bindingFake{bindings: map[string]TokenBinding{}}
	passwords := map[string]string{}
	deps := resetDeps(store, passwords)
	ctx := context.Background()

	require.NoError(t, RunRequestPasswordReset(ctx, "a@x.com", deps))

	assert.ErrorIs(t, RunResetPassword(ctx, "reset-tok", "short", deps), errValidation)
	assert.ErrorIs(t, RunResetPassword(ctx, "unknown", "newpassword1", deps), errTokenInvalid)

	require.NoError(t, RunResetPassword(ctx, "reset-tok", "newpassword1", deps))
	assert.Equal(t, "newpassword1", passwords["u-1"])

	assert.ErrorIs(t, RunResetPassword(ctx, "reset-tok", "another-pass", deps), errTokenInvalid)
	assert.Equal(t, "newpassword1", passwords["u-1"])
}

func TestRunResetPasswordRestoresTokenOnWriteFailure(t *testing.T) {
	store := &bindingFake{bindings: map[string]TokenBinding{}}
	passwords := map[string]string{}
	deps := resetDeps(store, passwords)
	ctx := context.Background()

	require.NoError(t, RunRequestPasswordReset(ctx, "a@x.com", deps))

	deps.SetPassword = func(context.Context, string, string) error { return errors.New("directory down") }
	assert.ErrorIs(t, RunResetPassword(ctx, "reset-tok", "newpassword1", deps), errUnavailable)
	assert.Contains(t, store.bindings, "reset-tok", "failed write restores the token")

	deps = resetDeps(store, passwords)
	require.NoError(t, RunResetPassword(ctx, "reset-tok", "newpassword1", deps))
	assert.Equal(t, "newpassword1", passwords["u-1"])
	assert.NotContains(t, store.bindings, "reset-tok")
}

func TestCheckEmail(t *testing.T) {
	for _, ok := range []string{"a@x.com", "first.last@sub.example.org"} {
		assert.NoError(t, CheckEmail(ok, errValidation), ok)
	}
	for _, bad := range []string{"", "a", "@x.com", "a@", "a@x", "a b@x.com"} {
		assert.ErrorIs(t, CheckEmail(bad, errValidation), errValidation, bad)
	}
}
