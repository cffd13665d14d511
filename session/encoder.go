package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CurrentSchemaVersion is the record version written by Encode.
const CurrentSchemaVersion = 1

// ErrSessionCorrupt is returned by Decode for records it cannot accept.
var ErrSessionCorrupt = errors.New("session record corrupt")

type sessionRecord struct {
	Version         int       `json:"v"`
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	Role            string    `json:"role"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Encode serializes s as a current-version record.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil session", ErrSessionCorrupt)
	}
	return json.Marshal(sessionRecord{
		Version:         CurrentSchemaVersion,
		ID:              s.ID,
		UserID:          s.UserID,
		Email:           s.Email,
		Username:        s.Username,
		Role:            s.Role,
		IsAuthenticated: s.IsAuthenticated,
		CreatedAt:       s.CreatedAt.UTC(),
		ExpiresAt:       s.ExpiresAt.UTC(),
	})
}

// Decode parses and validates a stored record.
func Decode(data []byte) (*Session, error) {
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}

	switch {
	case rec.Version != CurrentSchemaVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSessionCorrupt, rec.Version)
	case rec.ID == "" || rec.UserID == "":
		return nil, fmt.Errorf("%w: missing id", ErrSessionCorrupt)
	case !rec.ExpiresAt.After(rec.CreatedAt):
		return nil, fmt.Errorf("%w: expiresAt not after createdAt", ErrSessionCorrupt)
	}

	return &Session{
		ID:              rec.ID,
		UserID:          rec.UserID,
		Email:           rec.Email,
		Username:        rec.Username,
		Role:            rec.Role,
		IsAuthenticated: rec.IsAuthenticated,
		CreatedAt:       rec.CreatedAt,
		ExpiresAt:       rec.ExpiresAt,
	}, nil
}
