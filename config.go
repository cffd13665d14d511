package dashauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pharmalens/dashauth/password"
	"github.com/pharmalens/dashauth/session"
)

// Config is the complete Engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Session           SessionConfig
	Password          PasswordConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	RateLimit         RateLimitConfig
	Mail              MailConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	Store             StoreConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetimes and the session cookie.
type SessionConfig struct {
	CookieName       string
	ShortLifetime    time.Duration
	RememberLifetime time.Duration
	// SecureCookie sets the Secure cookie attribute. Enable in production.
	SecureCookie bool
	// RefreshThreshold is the fraction of a session's lifetime that must
	// remain before CurrentUser replaces it. Zero disables sliding refresh.
	RefreshThreshold float64
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the password policy and Argon2id cost parameters.
type PasswordConfig struct {
	MinLength   int
	MaxLength   int
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c PasswordConfig) hasherConfig() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

/*
====================================
TOKEN FLOW CONFIG
====================================
*/

// EmailVerificationConfig controls the email verification flow.
type EmailVerificationConfig struct {
	// Required makes new accounts start unverified and reports
	// RequiresVerification on login until the email is confirmed.
	Required bool
	TokenTTL time.Duration
}

// PasswordResetConfig controls the password reset flow.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

// RateLimitConfig controls login and outbound mail throttling. A zero max
// disables that budget.
type RateLimitConfig struct {
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	EnableIPThrottle bool
	MaxMailRequests  int
	MailCooldown     time.Duration
}

// MailConfig controls rendered email content.
type MailConfig struct {
	From    string
	AppName string
	// BaseURL prefixes verification and reset links, e.g. https://dash.example.com.
	BaseURL string
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// StoreConfig controls the key-value keyspace.
type StoreConfig struct {
	// KeyPrefix is prepended to every key when the Engine builds its own
	// Redis-backed store.
	KeyPrefix string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	hash := password.DefaultConfig()
	return Config{
		Session: SessionConfig{
			CookieName:       session.DefaultCookieName,
			ShortLifetime:    session.ShortLifetime,
			RememberLifetime: session.RememberLifetime,
			SecureCookie:     true,
			RefreshThreshold: 0.5,
		},
		Password: PasswordConfig{
			MinLength:   8,
			MaxLength:   128,
			Memory:      hash.Memory,
			Time:        hash.Time,
			Parallelism: hash.Parallelism,
			SaltLength:  hash.SaltLength,
			KeyLength:   hash.KeyLength,
		},
		EmailVerification: EmailVerificationConfig{
			Required: true,
			TokenTTL: 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts: 5,
			LoginCooldown:    15 * time.Minute,
			EnableIPThrottle: true,
			MaxMailRequests:  5,
			MailCooldown:     time.Hour,
		},
		Mail: MailConfig{
			From:    "no-reply@pharmalens.local",
			AppName: "PharmaLens",
			BaseURL: "http://localhost:8080",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Store: StoreConfig{
			KeyPrefix: "",
		},
	}
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	// -------- SESSION --------
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session.CookieName must not be empty")
	}
	if c.Session.ShortLifetime <= 0 {
		return errors.New("Session.ShortLifetime must be > 0")
	}
	if c.Session.RememberLifetime < c.Session.ShortLifetime {
		return errors.New("Session.RememberLifetime must be >= Session.ShortLifetime")
	}
	if c.Session.RefreshThreshold < 0 || c.Session.RefreshThreshold >= 1 {
		return errors.New("Session.RefreshThreshold must be in [0, 1)")
	}

	// -------- PASSWORD --------
	if c.Password.MinLength < 8 {
		return errors.New("Password.MinLength must be >= 8")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password.MaxLength must be 0 or >= Password.MinLength")
	}
	if _, err := password.NewArgon2(c.Password.hasherConfig()); err != nil {
		return err
	}

	// -------- TOKENS --------
	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification.TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset.TokenTTL must be > 0")
	}

	// -------- RATE LIMITS --------
	if c.RateLimit.MaxLoginAttempts < 0 || c.RateLimit.MaxMailRequests < 0 {
		return errors.New("RateLimit maximums must be >= 0")
	}
	if c.RateLimit.MaxLoginAttempts > 0 && c.RateLimit.LoginCooldown <= 0 {
		return errors.New("RateLimit.LoginCooldown must be > 0 when login throttling is enabled")
	}
	if c.RateLimit.MaxMailRequests > 0 && c.RateLimit.MailCooldown <= 0 {
		return errors.New("RateLimit.MailCooldown must be > 0 when mail throttling is enabled")
	}

	// -------- MAIL --------
	if c.Mail.BaseURL != "" {
		u, err := url.Parse(c.Mail.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("Mail.BaseURL must be an absolute URL")
		}
	}

	// -------- AUDIT --------
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
