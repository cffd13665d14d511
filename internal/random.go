package internal

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

const tokenSize = 32

// NewToken returns an opaque, URL-safe token carrying 256 bits of entropy. It is
// used for session ids, email verification tokens and password reset tokens.
func NewToken() (string, error) {
	var raw [tokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewUserID returns a random UUIDv4 string.
func NewUserID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
