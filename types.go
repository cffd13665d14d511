package dashauth

import (
	"time"

	"github.com/pharmalens/dashauth/directory"
)

// Principal is the authenticated user behind a request.
type Principal struct {
	UserID     string
	SessionID  string
	Email      string
	Username   string
	Name       string
	Role       directory.Role
	IsVerified bool
	ExpiresAt  time.Time

	createdAt time.Time
}

// HasRole reports whether the principal holds one of roles.
func (p *Principal) HasRole(roles ...directory.Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// AuthResult is returned by operations that issue a session.
type AuthResult struct {
	Principal *Principal
	// RequiresVerification is set when the account still has to confirm its
	// email. The session is issued anyway so the verification page can use it.
	RequiresVerification bool
	// VerificationSent reports whether a verification email went out during
	// registration.
	VerificationSent bool
}

// RegisterRequest is the input to Engine.Register.
type RegisterRequest struct {
	Username   string
	Email      string
	Name       string
	Password   string
	RememberMe bool
}

// LoginRequest is the input to Engine.Login.
type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
}

// VerificationResult is the identity a consumed verification token was bound to.
type VerificationResult struct {
	Email  string
	UserID string
}
