package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pharmalens/dashauth/kv"
)

const bindingRecordVersionV1 = 1

// Kind names the flow a binding belongs to. It doubles as the key namespace.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password-reset"
)

var (
	ErrBindingNotFound    = errors.New("token binding not found")
	ErrBindingCorrupt     = errors.New("token binding corrupt")
	ErrBindingUnavailable = errors.New("token binding store unavailable")
)

// Binding is the identity a token unlocks.
type Binding struct {
	Kind      Kind
	Email     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type bindingRecord struct {
	Version   int       `json:"v"`
	Kind      Kind      `json:"kind"`
	Email     string    `json:"email"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// BindingStore persists bindings of one [Kind].
type BindingStore struct {
	store kv.Store
	kind  Kind
	now   func() time.Time
}

// NewEmailVerificationStore returns the store for "verification:{token}" keys.
func NewEmailVerificationStore(store kv.Store) *BindingStore {
	return newBindingStore(store, KindVerification)
}

// NewPasswordResetStore returns the store for "password-reset:{token}" keys.
func NewPasswordResetStore(store kv.Store) *BindingStore {
	return newBindingStore(store, KindPasswordReset)
}

func newBindingStore(store kv.Store, kind Kind) *BindingStore {
	return &BindingStore{
		store: store,
		kind:  kind,
		now:   time.Now,
	}
}

// Key returns the store key used for token.
func (s *BindingStore) Key(token string) string {
	return string(s.kind) + ":" + token
}

// Save binds token to email (and userID when non-empty) for ttl.
func (s *BindingStore) Save(ctx context.Context, token, email, userID string, ttl time.Duration) error {
	if token == "" || email == "" {
		return fmt.Errorf("%w: empty token or email", ErrBindingCorrupt)
	}

	now := s.now()
	data, err := json.Marshal(bindingRecord{
		Version:   bindingRecordVersionV1,
		Kind:      s.kind,
		Email:     email,
		UserID:    userID,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(ttl).UTC(),
	})
	if err != nil {
		return err
	}

	if err := s.store.Set(ctx, s.Key(token), data, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrBindingUnavailable, err)
	}
	return nil
}

// Peek returns the binding for token without consuming it.
func (s *BindingStore) Peek(ctx context.Context, token string) (*Binding, error) {
	if token == "" {
		return nil, ErrBindingNotFound
	}

	data, err := s.store.Get(ctx, s.Key(token))
	if err != nil {
		return nil, mapStoreErr(err)
	}

	binding, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(binding.ExpiresAt) {
		_ = s.store.Delete(ctx, s.Key(token))
		return nil, ErrBindingNotFound
	}

	return binding, nil
}

// Consume atomically removes the binding for token and returns it. A second
// Consume of the same token returns ErrBindingNotFound.
func (s *BindingStore) Consume(ctx context.Context, token string) (*Binding, error) {
	if token == "" {
		return nil, ErrBindingNotFound
	}

	data, err := s.store.Take(ctx, s.Key(token))
	if err != nil {
		return nil, mapStoreErr(err)
	}

	binding, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(binding.ExpiresAt) {
		return nil, ErrBindingNotFound
	}

	return binding, nil
}

// Delete removes the binding for token. Deleting an absent token is not an error.
func (s *BindingStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.Delete(ctx, s.Key(token)); err != nil {
		return fmt.Errorf("%w: %v", ErrBindingUnavailable, err)
	}
	return nil
}

func (s *BindingStore) decode(data []byte) (*Binding, error) {
	var rec bindingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBindingCorrupt, err)
	}
	if rec.Version != bindingRecordVersionV1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBindingCorrupt, rec.Version)
	}
	if rec.Kind != s.kind {
		return nil, fmt.Errorf("%w: kind %q, want %q", ErrBindingCorrupt, rec.Kind, s.kind)
	}
	if rec.Email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrBindingCorrupt)
	}

	return &Binding{
		Kind:      rec.Kind,
		Email:     rec.Email,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func mapStoreErr(err error) error {
	if errors.Is(err, kv.ErrNotFound) {
		return ErrBindingNotFound
	}
	return fmt.Errorf("%w: %v", ErrBindingUnavailable, err)
}
