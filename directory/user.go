package directory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const userRecordVersionV1 = 1

// Role is the coarse authorization level of a user.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleAnalyst:
		return true
	default:
		return false
	}
}

// User is the public view of an account. It never carries the password hash.
type User struct {
	ID          string
	Username    string
	Email       string
	Name        string
	Role        Role
	IsVerified  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Preferences map[string]string
}

type userRecord struct {
	Version      int               `json:"v"`
	ID           string            `json:"id"`
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	PasswordHash string            `json:"passwordHash"`
	Role         Role              `json:"role"`
	IsVerified   bool              `json:"isVerified"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	Preferences  map[string]string `json:"preferences,omitempty"`
}

func (r *userRecord) user() *User {
	u := &User{
		ID:         r.ID,
		Username:   r.Username,
		Email:      r.Email,
		Name:       r.Name,
		Role:       r.Role,
		IsVerified: r.IsVerified,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.Preferences) > 0 {
		u.Preferences = make(map[string]string, len(r.Preferences))
		for k, v := range r.Preferences {
			u.Preferences[k] = v
		}
	}
	return u
}

func encodeUser(r *userRecord) ([]byte, error) {
	r.Version = userRecordVersionV1
	return json.Marshal(r)
}

func decodeUser(data []byte) (*userRecord, error) {
	var r userRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if r.Version != userRecordVersionV1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptRecord, r.Version)
	}
	if r.ID == "" || r.Email == "" || r.Username == "" {
		return nil, fmt.Errorf("%w: missing identity fields", ErrCorruptRecord)
	}
	if !r.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrCorruptRecord, r.Role)
	}
	return &r, nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userKey(id string) string {
	return "user:" + id
}

func emailIndexKey(email string) string {
	return "user:email:" + NormalizeEmail(email)
}

func usernameIndexKey(username string) string {
	return "user:username:" + strings.ToLower(strings.TrimSpace(username))
}
