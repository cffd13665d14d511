package dashauth

import (
	"time"

	"github.com/pharmalens/dashauth/internal/security"
)

// SecurityReport is a read-only snapshot of the engine's security posture.
// Warnings lists settings weaker than the production defaults.
type SecurityReport struct {
	SecureCookie            bool
	ShortLifetime           time.Duration
	RememberLifetime        time.Duration
	SlidingRefresh          bool
	Argon2                  PasswordConfigReport
	LoginRateLimitActive    bool
	IPThrottleActive        bool
	MailRateLimitActive     bool
	EmailVerificationActive bool
	VerificationTokenTTL    time.Duration
	ResetTokenTTL           time.Duration
	AuditActive             bool
	Warnings                []string
}

// PasswordConfigReport mirrors the password policy in effect.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// SecurityReport summarizes the configuration the engine was built with.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	c := e.config
	r := security.BuildReport(security.ReportInput{
		SecureCookie:     c.Session.SecureCookie,
		ShortLifetime:    c.Session.ShortLifetime,
		RememberLifetime: c.Session.RememberLifetime,
		RefreshThreshold: c.Session.RefreshThreshold,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
			MinLength:   c.Password.MinLength,
		},
		MaxLoginAttempts:      c.RateLimit.MaxLoginAttempts,
		LoginCooldownDuration: c.RateLimit.LoginCooldown,
		EnableIPThrottle:      c.RateLimit.EnableIPThrottle,
		MaxMailRequests:       c.RateLimit.MaxMailRequests,
		MailCooldownDuration:  c.RateLimit.MailCooldown,
		EmailVerification:     c.EmailVerification.Required,
		VerificationTokenTTL:  c.EmailVerification.TokenTTL,
		ResetTokenTTL:         c.PasswordReset.TokenTTL,
		AuditEnabled:          c.Audit.Enabled,
	})

	return SecurityReport{
		SecureCookie:            r.SecureCookie,
		ShortLifetime:           r.ShortLifetime,
		RememberLifetime:        r.RememberLifetime,
		SlidingRefresh:          r.SlidingRefresh,
		Argon2:                  PasswordConfigReport(r.Argon2),
		LoginRateLimitActive:    r.LoginRateLimitActive,
		IPThrottleActive:        r.IPThrottleActive,
		MailRateLimitActive:     r.MailRateLimitActive,
		EmailVerificationActive: r.EmailVerificationActive,
		VerificationTokenTTL:    r.VerificationTokenTTL,
		ResetTokenTTL:           r.ResetTokenTTL,
		AuditActive:             r.AuditActive,
		Warnings:                r.Warnings,
	}
}
