package dashauth

import (
	"errors"

	"github.com/pharmalens/dashauth/internal/flows"
)

var (
	// ErrValidation wraps request validation failures. Use ValidationReason
	// for the user-facing message.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrLoginRateLimited is returned when an email or IP exhausted its login budget.
	ErrLoginRateLimited = errors.New("too many login attempts")
	// ErrAccountExists is returned by Register for a taken email or username.
	ErrAccountExists = errors.New("account already exists")
	// ErrIncorrectPassword is returned by ChangePassword when the current password does not match.
	ErrIncorrectPassword = errors.New("current password is incorrect")
	// ErrUnauthenticated is returned when a request carries no live session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUserNotFound is returned when a session or token outlived its user.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenInvalid covers unknown, expired and already-used tokens.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrMailRateLimited is returned when an address asked for too many emails.
	ErrMailRateLimited = errors.New("too many email requests")
	// ErrMailDelivery wraps outbound email failures. Sends are never retried.
	ErrMailDelivery = errors.New("email delivery failed")
	// ErrUnavailable wraps key-value store failures on write paths.
	ErrUnavailable = errors.New("auth backend unavailable")
	// ErrEngineNotReady is returned when the Engine was not built through Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidConfig wraps Config.Validate failures.
	ErrInvalidConfig = errors.New("invalid config")
)

// ValidationReason returns the user-facing message of a validation error, or
// "" when err is not one.
func ValidationReason(err error) string {
	return flows.ReasonOf(err)
}
