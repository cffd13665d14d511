package mail

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposerVerification(t *testing.T) {
	c := Composer{From: "noreply@pharmalens.io", AppName: "PharmaLens", BaseURL: "https://dash.example.com/"}

	msg, err := c.Verification("a@x.com", "tok+/=")
	require.NoError(t, err)

	assert.Equal(t, "noreply@pharmalens.io", msg.From)
	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, verificationSubject, msg.Subject)
	assert.Contains(t, msg.HTML, "PharmaLens")
	assert.Contains(t, msg.HTML, `href="https://dash.example.com/auth/verify-email?token=tok%2B%2F%3D"`)
}

func TestComposerPasswordReset(t *testing.T) {
	c := Composer{AppName: "PharmaLens", BaseURL: "http://localhost:8080"}

	msg, err := c.PasswordReset("a@x.com", "abc")
	require.NoError(t, err)

	assert.Equal(t, passwordResetSubject, msg.Subject)
	assert.Contains(t, msg.HTML, `href="http://localhost:8080/auth/reset-password?token=abc"`)
}

func TestMemorySender(t *testing.T) {
	s := &MemorySender{}
	ctx := context.Background()

	_, ok := s.Last()
	assert.False(t, ok)

	require.NoError(t, s.Send(ctx, Message{To: "a@x.com", Subject: "one"}))
	require.NoError(t, s.Send(ctx, Message{To: "b@x.com", Subject: "two"}))

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "two", last.Subject)
	assert.Len(t, s.Messages(), 2)

	s.Err = errors.New("relay down")
	assert.Error(t, s.Send(ctx, Message{To: "c@x.com", Subject: "three"}))
	assert.Len(t, s.Messages(), 2)
}

func TestMessageValidation(t *testing.T) {
	s := &MemorySender{}
	ctx := context.Background()

	assert.ErrorIs(t, s.Send(ctx, Message{Subject: "x"}), ErrInvalidMessage)
	assert.ErrorIs(t, s.Send(ctx, Message{To: "a@x.com"}), ErrInvalidMessage)
	assert.ErrorIs(t, s.Send(ctx, Message{To: "a@x.com\r\nBcc: evil@x.com", Subject: "x"}), ErrInvalidMessage)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: zerolog.New(&buf)}

	require.NoError(t, s.Send(context.Background(), Message{To: "a@x.com", Subject: "hello", HTML: "<p>x</p>"}))
	assert.Contains(t, buf.String(), `"to":"a@x.com"`)
	assert.Contains(t, buf.String(), `"subject":"hello"`)
}

func TestSMTPSenderComposesMessage(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Username: "relay@example.com", Password: "secret"})
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	var gotAuth smtp.Auth
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotBody = addr, a, from, to, msg
		return nil
	}

	err := s.Send(context.Background(), Message{To: "a@x.com", Subject: "Reset your password", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "relay@example.com", gotFrom, "falls back to the account address")
	assert.Equal(t, []string{"a@x.com"}, gotTo)

	body := string(gotBody)
	assert.True(t, strings.HasPrefix(body, "From: relay@example.com\r\n"))
	assert.Contains(t, body, "Content-Type: text/html")
	assert.Contains(t, body, "Date: Sun, 01 Mar 2026 12:00:00 +0000")
	assert.True(t, strings.HasSuffix(body, "\r\n\r\n<p>hi</p>"))
}

func TestSMTPSenderReportsFailure(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: "2525"})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := s.Send(context.Background(), Message{From: "x@y.z", To: "a@x.com", Subject: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp.example.com:2525")
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com"})
	called := false
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Send(ctx, Message{To: "a@x.com", Subject: "s"}), context.Canceled)
	assert.False(t, called)
}
