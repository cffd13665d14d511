package directory

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrIncorrectPassword  = errors.New("current password is incorrect")
	ErrUnavailable        = errors.New("user directory unavailable")
	ErrCorruptRecord      = errors.New("user record corrupt")
	ErrInvalidUser        = errors.New("invalid user data")
)
