package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pharmalens/dashauth"
)

// serverConfig is everything the binary reads from the environment.
type serverConfig struct {
	AppName   string
	Addr      string
	Env       string
	LogLevel  string
	RedisURL  string
	KeyPrefix string

	SMTPHost     string
	SMTPPort     string
	SMTPAccount  string
	SMTPPassword string

	Auth dashauth.Config
}

func (c serverConfig) production() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// loadConfig reads .env files when present and then the process environment.
// Variables already set win over file values.
func loadConfig(files ...string) (serverConfig, error) {
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	c := serverConfig{
		AppName:      getenv("APP_NAME", "PharmaLens"),
		Addr:         listenAddr(getenv("PORT", "8080")),
		Env:          getenv("ENV", "DEV"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		RedisURL:     getenv("REDIS_URL", ""),
		KeyPrefix:    getenv("REDIS_KEY_PREFIX", ""),
		SMTPHost:     getenv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPAccount:  getenv("SMTP_ACCOUNT", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
	}

	cfg := dashauth.DefaultConfig()
	cfg.Session.SecureCookie = c.production()
	cfg.Store.KeyPrefix = c.KeyPrefix
	cfg.Mail.AppName = c.AppName
	cfg.Mail.BaseURL = getenv("BASE_URL", cfg.Mail.BaseURL)
	cfg.Mail.From = getenv("MAIL_FROM", cfg.Mail.From)
	cfg.EmailVerification.Required = getbool("REQUIRE_EMAIL_VERIFICATION", cfg.EmailVerification.Required)
	cfg.Audit.Enabled = getbool("AUDIT_ENABLED", cfg.Audit.Enabled)

	var err error
	if cfg.Session.ShortLifetime, err = getduration("SESSION_LIFETIME", cfg.Session.ShortLifetime); err != nil {
		return c, err
	}
	if cfg.Session.RememberLifetime, err = getduration("SESSION_REMEMBER_LIFETIME", cfg.Session.RememberLifetime); err != nil {
		return c, err
	}
	if cfg.RateLimit.MaxLoginAttempts, err = getint("MAX_LOGIN_ATTEMPTS", cfg.RateLimit.MaxLoginAttempts); err != nil {
		return c, err
	}
	if cfg.RateLimit.LoginCooldown, err = getduration("LOGIN_COOLDOWN", cfg.RateLimit.LoginCooldown); err != nil {
		return c, err
	}

	c.Auth = cfg
	return c, c.Auth.Validate()
}

func (c serverConfig) smtpEnabled() bool {
	return c.SMTPAccount != "" && c.SMTPPassword != ""
}

func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getint(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
