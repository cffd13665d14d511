package session

import "time"

const (
	// DefaultCookieName is the cookie carrying the session id.
	DefaultCookieName = "session_id"
	// ShortLifetime is the lifetime of a session created without "remember me".
	ShortLifetime = 24 * time.Hour
	// RememberLifetime is the lifetime of a "remember me" session.
	RememberLifetime = 30 * 24 * time.Hour
)

// Session is an authenticated login bound to one user.
type Session struct {
	ID              string
	UserID          string
	Email           string
	Username        string
	Role            string
	IsAuthenticated bool
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Identity is the user snapshot copied into a new session.
type Identity struct {
	UserID   string
	Email    string
	Username string
	Role     string
}

// Identity returns the user snapshot carried by s.
func (s *Session) Identity() Identity {
	return Identity{
		UserID:   s.UserID,
		Email:    s.Email,
		Username: s.Username,
		Role:     s.Role,
	}
}

// Lifetime is the full grant length of s.
func (s *Session) Lifetime() time.Duration {
	return s.ExpiresAt.Sub(s.CreatedAt)
}

// Expired reports whether s is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Remaining returns the time left before expiry, or zero once expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.Expired(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}
