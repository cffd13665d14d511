package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pharmalens/dashauth/internal"
	"github.com/rs/zerolog"
)

// ManagerConfig configures a [Manager]. Zero values take the package defaults.
type ManagerConfig struct {
	CookieName       string
	ShortLifetime    time.Duration
	RememberLifetime time.Duration
	// SecureCookie sets the Secure attribute. Enable in production.
	SecureCookie bool
	Logger       zerolog.Logger
}

// Manager creates, reads, refreshes and destroys sessions and keeps the
// session cookie in step with the store. It is safe for concurrent use.
type Manager struct {
	store  *Store
	config ManagerConfig
	logger zerolog.Logger
	now    func() time.Time
	newID  func() (string, error)
}

// NewManager returns a Manager persisting to store.
func NewManager(store *Store, cfg ManagerConfig) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.ShortLifetime <= 0 {
		cfg.ShortLifetime = ShortLifetime
	}
	if cfg.RememberLifetime <= 0 {
		cfg.RememberLifetime = RememberLifetime
	}
	return &Manager{
		store:  store,
		config: cfg,
		logger: cfg.Logger,
		now:    time.Now,
		newID:  internal.NewToken,
	}
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.config.CookieName
}

// Store returns the underlying session store.
func (m *Manager) Store() *Store {
	return m.store
}

// Create issues a new session for id and, when w is non-nil, sets the cookie.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, id Identity, rememberMe bool) (*Session, error) {
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrSessionCorrupt)
	}

	lifetime := m.config.ShortLifetime
	if rememberMe {
		lifetime = m.config.RememberLifetime
	}

	sid, err := m.newID()
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := &Session{
		ID:              sid,
		UserID:          id.UserID,
		Email:           id.Email,
		Username:        id.Username,
		Role:            id.Role,
		IsAuthenticated: true,
		CreatedAt:       now,
		ExpiresAt:       now.Add(lifetime),
	}

	if err := m.store.Save(ctx, sess); err != nil {
		m.logger.Error().Err(err).Str("user_id", id.UserID).Msg("save session")
		return nil, err
	}

	SetCookie(w, m.config.CookieName, sess.ID, sess.ExpiresAt, m.config.SecureCookie)
	return sess, nil
}

// Get returns the live session for id, reading the id from r's cookie when id
// is empty. Expired sessions are deleted. Every failure, including store
// errors, is reported as ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, r *http.Request, id string) (*Session, error) {
	if id == "" {
		id = IDFromRequest(r, m.config.CookieName)
	}
	if id == "" {
		return nil, ErrSessionNotFound
	}

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			m.logger.Error().Err(err).Msg("load session")
		}
		return nil, ErrSessionNotFound
	}

	if sess.Expired(m.now()) {
		if err := m.store.Delete(ctx, id); err != nil {
			m.logger.Warn().Err(err).Msg("delete expired session")
		}
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Destroy deletes the session and clears the cookie. An absent session is not
// an error.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) error {
	if id == "" {
		id = IDFromRequest(r, m.config.CookieName)
	}

	var err error
	if id != "" {
		err = m.store.Delete(ctx, id)
		if err != nil {
			m.logger.Error().Err(err).Msg("delete session")
		}
	}

	ClearCookie(w, m.config.CookieName, m.config.SecureCookie)
	return err
}

// Refresh replaces the session with a new one for the same user. A session
// whose grant was longer than the short lifetime is renewed as a remembered
// session. The old session is deleted before the new one is created.
func (m *Manager) Refresh(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) (*Session, error) {
	current, err := m.Get(ctx, r, id)
	if err != nil {
		return nil, err
	}

	remember := current.Lifetime() > m.config.ShortLifetime

	if err := m.store.Delete(ctx, current.ID); err != nil {
		m.logger.Error().Err(err).Msg("delete session before refresh")
		return nil, err
	}

	return m.Create(ctx, w, current.Identity(), remember)
}

// Count returns the number of stored sessions.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}
