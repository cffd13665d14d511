package flows

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// CredentialRules are the input checks applied before touching the store.
type CredentialRules struct {
	MinPasswordLength int
	MaxPasswordLength int
}

// ValidationError carries a user-facing reason and wraps the host sentinel.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Err.Error() + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(sentinel error, reason string) error {
	return &ValidationError{Reason: reason, Err: sentinel}
}

// CheckPassword enforces the password length rules.
func CheckPassword(rules CredentialRules, password string, sentinel error) error {
	n := utf8.RuneCountInString(password)
	if n == 0 {
		return invalid(sentinel, "password is required")
	}
	if rules.MinPasswordLength > 0 && n < rules.MinPasswordLength {
		return invalid(sentinel, "password must be at least "+strconv.Itoa(rules.MinPasswordLength)+" characters")
	}
	if rules.MaxPasswordLength > 0 && n > rules.MaxPasswordLength {
		return invalid(sentinel, "password must be at most "+strconv.Itoa(rules.MaxPasswordLength)+" characters")
	}
	return nil
}

// CheckEmail performs a shape check on an already-normalized address.
func CheckEmail(email string, sentinel error) error {
	if email == "" {
		return invalid(sentinel, "email is required")
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return invalid(sentinel, "email address is invalid")
	}
	if !strings.Contains(email[at+1:], ".") {
		return invalid(sentinel, "email address is invalid")
	}
	return nil
}

// ReasonOf returns the user-facing reason of a validation error, or "".
func ReasonOf(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Reason
	}
	return ""
}
