package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pharmalens/dashauth/kv"
)

var (
	// ErrSessionNotFound is returned when no live session exists for an id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backing store failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

const keyPrefix = "session:"

// Store persists sessions in a kv.Store.
type Store struct {
	kv  kv.Store
	now func() time.Time
}

// NewStore returns a Store over backend.
func NewStore(backend kv.Store) *Store {
	return &Store{
		kv:  backend,
		now: time.Now,
	}
}

func sessionKey(id string) string {
	return keyPrefix + id
}

// Save writes s with a TTL equal to its remaining lifetime.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ttl := sess.Remaining(s.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: session already expired", ErrSessionCorrupt)
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, sessionKey(sess.ID), data, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns the stored session without checking expiry.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	data, err := s.kv.Get(ctx, sessionKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if sess.ID != id {
		return nil, fmt.Errorf("%w: id mismatch", ErrSessionCorrupt)
	}
	return sess, nil
}

// Delete removes the session. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.kv.Delete(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return len(keys), nil
}
