package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

var alice = Identity{UserID: "u-1", Email: "a@x.com", Username: "alice", Role: "user"}

func newManagerTest(t *testing.T, secure bool) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	store, mr := newSessionStoreTest(t)
	return NewManager(store, ManagerConfig{SecureCookie: secure, Logger: zerolog.Nop()}), mr
}

func cookieFrom(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestCreateSetsLifetimeAndCookie(t *testing.T) {
	m, mr := newManagerTest(t, true)
	now := time.Now()
	m.now = func() time.Time { return now }
	m.store.now = m.now

	rec := httptest.NewRecorder()
	sess, err := m.Create(context.Background(), rec, alice, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if got := sess.Lifetime(); got != ShortLifetime {
		t.Fatalf("lifetime = %v, want %v", got, ShortLifetime)
	}
	if ttl := mr.TTL("session:" + sess.ID); ttl != ShortLifetime {
		t.Fatalf("store ttl = %v, want %v", ttl, ShortLifetime)
	}

	c := cookieFrom(t, rec, DefaultCookieName)
	if c.Value != sess.ID {
		t.Fatalf("cookie value %q, want %q", c.Value, sess.ID)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Fatalf("unexpected cookie attributes %+v", c)
	}
	if !c.Expires.Equal(sess.ExpiresAt.UTC().Truncate(time.Second)) {
		t.Fatalf("cookie expires %v, want %v", c.Expires, sess.ExpiresAt)
	}
}

func TestCreateRememberMe(t *testing.T) {
	m, _ := newManagerTest(t, false)

	sess, err := m.Create(context.Background(), nil, alice, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := sess.Lifetime(); got != RememberLifetime {
		t.Fatalf("lifetime = %v, want %v", got, RememberLifetime)
	}
}

func TestCreateRequiresUser(t *testing.T) {
	m, _ := newManagerTest(t, false)
	if _, err := m.Create(context.Background(), nil, Identity{}, false); err == nil {
		t.Fatalf("expected error for empty identity")
	}
}

func TestGetReadsCookie(t *testing.T) {
	m, _ := newManagerTest(t, false)
	ctx := context.Background()

	sess, err := m.Create(ctx, nil, alice, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sess.ID})

	got, err := m.Get(ctx, req, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != sess.ID || got.Email != alice.Email {
		t.Fatalf("unexpected session %+v", got)
	}

	if _, err := m.Get(ctx, httptest.NewRequest(http.MethodGet, "/", nil), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound without cookie, got %v", err)
	}
}

func TestGetDeletesExpiredSession(t *testing.T) {
	m, mr := newManagerTest(t, false)
	ctx := context.Background()

	sess, err := m.Create(ctx, nil, alice, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	later := time.Now().Add(ShortLifetime + time.Minute)
	m.now = func() time.Time { return later }

	if _, err := m.Get(ctx, nil, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if mr.Exists("session:" + sess.ID) {
		t.Fatalf("expired session not deleted")
	}
}

func TestGetFailsClosedOnStoreError(t *testing.T) {
	m, mr := newManagerTest(t, false)
	ctx := context.Background()

	sess, err := m.Create(ctx, nil, alice, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.Close()

	if _, err := m.Get(ctx, nil, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDestroyClearsCookieAndIsIdempotent(t *testing.T) {
	m, mr := newManagerTest(t, false)
	ctx := context.Background()

	sess, err := m.Create(ctx, nil, alice, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: sess.ID})

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		if err := m.Destroy(ctx, rec, req, ""); err != nil {
			t.Fatalf("destroy %d: %v", i, err)
		}
		if c := cookieFrom(t, rec, DefaultCookieName); c.MaxAge >= 0 || c.Value != "" {
			t.Fatalf("cookie not cleared: %+v", c)
		}
	}
	if mr.Exists("session:" + sess.ID) {
		t.Fatalf("session still stored")
	}

	if err := m.Destroy(ctx, nil, nil, ""); err != nil {
		t.Fatalf("destroy without id: %v", err)
	}
}

func TestRefreshIssuesNewSessionAndKeepsGrant(t *testing.T) {
	for _, remember := range []bool{false, true} {
		m, mr := newManagerTest(t, false)
		ctx := context.Background()

		old, err := m.Create(ctx, nil, alice, remember)
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		rec := httptest.NewRecorder()
		fresh, err := m.Refresh(ctx, rec, nil, old.ID)
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}

		if fresh.ID == old.ID {
			t.Fatalf("refresh reused the session id")
		}
		if mr.Exists("session:" + old.ID) {
			t.Fatalf("old session still stored")
		}
		if fresh.Lifetime() != old.Lifetime() {
			t.Fatalf("remember=%v: lifetime %v, want %v", remember, fresh.Lifetime(), old.Lifetime())
		}
		if fresh.UserID != alice.UserID || fresh.Role != alice.Role {
			t.Fatalf("identity not carried over: %+v", fresh)
		}
		if c := cookieFrom(t, rec, DefaultCookieName); c.Value != fresh.ID {
			t.Fatalf("cookie not updated")
		}
	}
}

func TestRefreshMissingSession(t *testing.T) {
	m, _ := newManagerTest(t, false)
	if _, err := m.Refresh(context.Background(), nil, nil, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	m, _ := newManagerTest(t, false)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		sess, err := m.Create(ctx, nil, alice, false)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, dup := seen[sess.ID]; dup {
			t.Fatalf("duplicate session id %q", sess.ID)
		}
		seen[sess.ID] = struct{}{}
	}

	n, err := m.Count(ctx)
	if err != nil || n != 50 {
		t.Fatalf("count = %d, %v", n, err)
	}
}
