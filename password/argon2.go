package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	separator             = ":"
)

// Config holds the Argon2id cost parameters.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the production cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher is the capability consumed by the user directory.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, stored string) bool
}

// Argon2 is the Argon2id [Hasher].
type Argon2 struct {
	config Config
}

var _ Hasher = (*Argon2)(nil)

// NewArgon2 validates cfg and returns a hasher using it.
//
// NewArgon2 returns an error when a parameter is below its safe minimum.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Argon2{config: cfg}, nil
}

// Hash derives a key from password and a fresh random salt. Two calls with the
// same password never return the same string.
func (a *Argon2) Hash(password string) (string, error) {
	// Password processing uses raw string bytes exactly as provided (no Unicode normalization).
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := a.derive(password, salt, a.config.KeyLength)

	return hex.EncodeToString(salt) + separator + hex.EncodeToString(key), nil
}

// Verify reports whether password matches stored. Malformed stored values are
// a verification failure, never a panic. The final comparison is constant time.
func (a *Argon2) Verify(password, stored string) bool {
	salt, key, err := parseStored(stored)
	if err != nil {
		return false
	}

	computed := a.derive(password, salt, uint32(len(key)))

	return subtle.ConstantTimeCompare(computed, key) == 1
}

func (a *Argon2) derive(password string, salt []byte, keyLength uint32) []byte {
	return argon2.IDKey(
		[]byte(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		keyLength,
	)
}

func parseStored(stored string) ([]byte, []byte, error) {
	saltPart, keyPart, ok := strings.Cut(stored, separator)
	if !ok || strings.Contains(keyPart, separator) {
		return nil, nil, errors.New("invalid hash format")
	}

	salt, err := hex.DecodeString(saltPart)
	if err != nil {
		return nil, nil, errors.New("invalid salt encoding")
	}
	if len(salt) < int(minSaltLength) {
		return nil, nil, errors.New("invalid salt length")
	}

	key, err := hex.DecodeString(keyPart)
	if err != nil {
		return nil, nil, errors.New("invalid hash encoding")
	}
	if len(key) < int(minKeyLength) {
		return nil, nil, errors.New("invalid hash length")
	}

	return salt, key, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}

	return nil
}
