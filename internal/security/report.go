package security

import "time"

// Production baselines. Settings below them are reported as warnings.
const (
	baselineArgonMemory   = 64 * 1024
	baselineArgonTime     = 3
	baselineMinPassword   = 8
	baselineMaxRemember   = 30 * 24 * time.Hour
	baselineTokenLifetime = 24 * time.Hour
)

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

type Report struct {
	SecureCookie            bool
	ShortLifetime           time.Duration
	RememberLifetime        time.Duration
	SlidingRefresh          bool
	Argon2                  PasswordReport
	LoginRateLimitActive    bool
	IPThrottleActive        bool
	MailRateLimitActive     bool
	EmailVerificationActive bool
	VerificationTokenTTL    time.Duration
	ResetTokenTTL           time.Duration
	AuditActive             bool
	Warnings                []string
}

type ReportInput struct {
	SecureCookie          bool
	ShortLifetime         time.Duration
	RememberLifetime      time.Duration
	RefreshThreshold      float64
	Password              PasswordReport
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	EnableIPThrottle      bool
	MaxMailRequests       int
	MailCooldownDuration  time.Duration
	EmailVerification     bool
	VerificationTokenTTL  time.Duration
	ResetTokenTTL         time.Duration
	AuditEnabled          bool
}

func BuildReport(input ReportInput) Report {
	loginLimit := input.MaxLoginAttempts > 0 && input.LoginCooldownDuration > 0

	r := Report{
		SecureCookie:            input.SecureCookie,
		ShortLifetime:           input.ShortLifetime,
		RememberLifetime:        input.RememberLifetime,
		SlidingRefresh:          input.RefreshThreshold > 0,
		Argon2:                  input.Password,
		LoginRateLimitActive:    loginLimit,
		IPThrottleActive:        loginLimit && input.EnableIPThrottle,
		MailRateLimitActive:     input.MaxMailRequests > 0 && input.MailCooldownDuration > 0,
		EmailVerificationActive: input.EmailVerification,
		VerificationTokenTTL:    input.VerificationTokenTTL,
		ResetTokenTTL:           input.ResetTokenTTL,
		AuditActive:             input.AuditEnabled,
	}
	r.Warnings = warnings(r)
	return r
}

func warnings(r Report) []string {
	var out []string
	if !r.SecureCookie {
		out = append(out, "session cookie is sent without the Secure attribute")
	}
	if r.Argon2.Memory < baselineArgonMemory || r.Argon2.Time < baselineArgonTime {
		out = append(out, "argon2 cost is below the production baseline")
	}
	if r.Argon2.MinLength < baselineMinPassword {
		out = append(out, "minimum password length is below 8")
	}
	if r.RememberLifetime > baselineMaxRemember {
		out = append(out, "remember-me sessions outlive 30 days")
	}
	if !r.LoginRateLimitActive {
		out = append(out, "login attempts are not rate limited")
	}
	if !r.MailRateLimitActive {
		out = append(out, "verification and reset emails are not rate limited")
	}
	if !r.EmailVerificationActive {
		out = append(out, "email verification is not required")
	}
	if r.ResetTokenTTL > baselineTokenLifetime {
		out = append(out, "password reset tokens live longer than 24h")
	}
	return out
}
