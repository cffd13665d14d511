package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pharmalens/dashauth/kv"
)

// Config holds rate limiter tuning parameters. A zero max disables that budget.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	MaxMailRequests       int
	MailCooldownDuration  time.Duration
}

// Limiter enforces per-identifier and per-IP budgets using store counters.
type Limiter struct {
	store  kv.Store
	config Config
}

// New creates a rate [Limiter] backed by the given store.
func New(store kv.Store, cfg Config) *Limiter {
	return &Limiter{
		store:  store,
		config: cfg,
	}
}

// CheckLogin checks whether the email+IP pair is within the failed-login
// budget. It does not count the attempt; see IncrementLogin.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxLoginAttempts <= 0 {
		return nil
	}

	if err := l.checkCounter(ctx, loginUserKey(email), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login attempt for the email+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	if l == nil || l.config.MaxLoginAttempts <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, loginUserKey(email), l.config.LoginCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the failed-login counter for the email. Called after a
// successful login or password reset. The IP counter is left to expire.
func (l *Limiter) ResetLogin(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}

	if err := l.store.Delete(ctx, loginUserKey(email)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// AllowMail counts one outbound mail of kind ("verification", "password-reset")
// for email and returns ErrRateLimited once the window budget is spent.
func (l *Limiter) AllowMail(ctx context.Context, kind, email string) error {
	if l == nil || l.config.MaxMailRequests <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, mailKey(kind, email), l.config.MailCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxMailRequests) {
		return ErrRateLimited
	}

	return nil
}

// LoginAttempts returns the current failed-attempt counter for an email.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) LoginAttempts(ctx context.Context, email string) (int, error) {
	raw, err := l.store.Get(ctx, loginUserKey(email))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	raw, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil
	}
	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.store.Increment(ctx, key, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 && ttl > 0 {
		if err := l.store.Expire(ctx, key, ttl); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return count, nil
}

func loginUserKey(email string) string {
	return "ratelimit:login:" + strings.ToLower(email)
}

func loginIPKey(ip string) string {
	return "ratelimit:login-ip:" + ip
}

func mailKey(kind, email string) string {
	return "ratelimit:mail:" + kind + ":" + strings.ToLower(email)
}
