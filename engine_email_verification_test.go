package dashauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVerifyEmailTokenIsSingleUse(t *testing.T) {
	e, sender, _ := newTestEngine(t, nil)
	res := registerUser(t, e, "alice", "a@x.com")
	ctx := context.Background()

	if err := e.SendVerificationEmail(ctx, "A@x.com"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, _ := sender.Last()
	token := tokenFromMail(t, msg)

	got, err := e.VerifyEmailToken(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Email != "a@x.com" || got.UserID != res.Principal.UserID {
		t.Fatalf("unexpected binding %+v", got)
	}

	if _, err := e.VerifyEmailToken(ctx, token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("second use: expected ErrTokenInvalid, got %v", err)
	}
	if _, err := e.VerifyEmailToken(ctx, ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("empty token: expected ErrTokenInvalid, got %v", err)
	}
}

func TestExpiredVerificationTokenIsInvalid(t *testing.T) {
	e, sender, mr := newTestEngine(t, nil)
	registerUser(t, e, "alice", "a@x.com")

	msg, _ := sender.Last()
	mr.FastForward(25 * time.Hour)

	_, err := e.CompleteEmailVerification(context.Background(), nil, tokenFromMail(t, msg))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestResendVerificationEmail(t *testing.T) {
	e, sender, _ := newTestEngine(t, nil)
	res := registerUser(t, e, "alice", "a@x.com")
	ctx := context.Background()
	first, _ := sender.Last()

	if err := e.ResendVerificationEmail(ctx, res.Principal.UserID, ""); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if n := len(sender.Messages()); n != 2 {
		t.Fatalf("expected 2 mails, got %d", n)
	}
	second, _ := sender.Last()
	if tokenFromMail(t, first) == tokenFromMail(t, second) {
		t.Fatal("resend must issue a fresh token")
	}

	if err := e.ResendVerificationEmail(ctx, res.Principal.UserID, "other@x.com"); !errors.Is(err, ErrValidation) {
		t.Fatalf("mismatched email: expected ErrValidation, got %v", err)
	}

	// The earlier token is not revoked by the resend.
	if _, err := e.CompleteEmailVerification(ctx, nil, tokenFromMail(t, first)); err != nil {
		t.Fatalf("complete with first token: %v", err)
	}
	if err := e.ResendVerificationEmail(ctx, res.Principal.UserID, ""); err != nil {
		t.Fatalf("resend for verified user: %v", err)
	}
	if n := len(sender.Messages()); n != 2 {
		t.Fatalf("verified account must not get mail, got %d messages", n)
	}
}

func TestVerificationMailThrottled(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.RateLimit.MaxMailRequests = 1 })
	ctx := context.Background()

	if err := e.SendVerificationEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := e.SendVerificationEmail(ctx, "a@x.com"); !errors.Is(err, ErrMailRateLimited) {
		t.Fatalf("expected ErrMailRateLimited, got %v", err)
	}
}

func TestVerificationMailFailureReported(t *testing.T) {
	e, sender, _ := newTestEngine(t, nil)
	sender.Err = errors.New("smtp: connection refused")

	err := e.SendVerificationEmail(context.Background(), "a@x.com")
	if !errors.Is(err, ErrMailDelivery) {
		t.Fatalf("expected ErrMailDelivery, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricMailFailure]; got != 1 {
		t.Fatalf("expected mail failure counter 1, got %d", got)
	}
}

func TestRegisterSucceedsWhenVerificationMailFails(t *testing.T) {
	e, sender, _ := newTestEngine(t, nil)
	sender.Err = errors.New("smtp: connection refused")

	res := registerUser(t, e, "alice", "a@x.com")
	if res.VerificationSent || !res.RequiresVerification || res.Principal.SessionID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
}
