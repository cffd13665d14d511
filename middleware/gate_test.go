package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pharmalens/dashauth"
	"github.com/pharmalens/dashauth/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	principal *dashauth.Principal
	err       error
	calls     int
	cleared   int
}

func (f *fakeAuth) Authenticate(_ context.Context, _ string) (*dashauth.Principal, error) {
	f.calls++
	return f.principal, f.err
}

func (f *fakeAuth) SessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie("session_id")
	if err != nil {
		return ""
	}
	return c.Value
}

func (f *fakeAuth) ClearSessionCookie(w http.ResponseWriter) {
	f.cleared++
	http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "", Path: "/", MaxAge: -1})
}

var testClassifier = PrefixClassifier{
	Public:    []string{"/login", "/register"},
	Protected: []string{"/dashboard", "/api"},
}

type seen struct {
	called    bool
	principal *dashauth.Principal
}

func (s *seen) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.principal, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func serve(t *testing.T, auth Authenticator, path, cookie string, opts ...GateOption) (*httptest.ResponseRecorder, *seen) {
	t.Helper()

	s := &seen{}
	h := Gate(auth, testClassifier, opts...)(s.handler())
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: cookie})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, s
}

func clearedCookie(rec *httptest.ResponseRecorder) bool {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session_id" && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

func TestPrefixClassifier(t *testing.T) {
	cases := map[string]RouteClass{
		"/login":           RoutePublic,
		"/register/":       RoutePublic,
		"/dashboard":       RouteProtected,
		"/dashboard/sales": RouteProtected,
		"/dashboards":      RouteNeither,
		"/api/me":          RouteProtected,
		"/about":           RouteNeither,
		"/":                RouteNeither,
	}
	for path, want := range cases {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, want, testClassifier.Classify(r), path)
	}
}

func TestGateNoCookie(t *testing.T) {
	auth := &fakeAuth{}

	rec, s := serve(t, auth, "/dashboard", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.False(t, s.called)
	assert.Zero(t, auth.calls)

	rec, s = serve(t, auth, "/about", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.called)
	assert.Nil(t, s.principal)

	rec, s = serve(t, auth, "/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.called)
}

func TestGateInvalidSession(t *testing.T) {
	for _, err := range []error{dashauth.ErrUnauthenticated, dashauth.ErrUserNotFound} {
		auth := &fakeAuth{err: err}

		rec, s := serve(t, auth, "/dashboard", "stale")
		assert.Equal(t, http.StatusFound, rec.Code, err)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
		assert.True(t, clearedCookie(rec), "cookie cleared on protected route")
		assert.False(t, s.called)

		auth = &fakeAuth{err: err}
		rec, s = serve(t, auth, "/about", "stale")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, s.called)
		assert.Nil(t, s.principal)
		assert.Zero(t, auth.cleared, "cookie kept outside protected routes")
	}
}

func TestGateUnverifiedUser(t *testing.T) {
	auth := &fakeAuth{principal: &dashauth.Principal{UserID: "u-1", IsVerified: false}}

	rec, s := serve(t, auth, "/dashboard", "sid")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/verify-email", rec.Header().Get("Location"))
	assert.False(t, clearedCookie(rec))
	assert.Zero(t, auth.cleared)
	assert.False(t, s.called)

	rec, s = serve(t, auth, "/about", "sid")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.principal)
	assert.Equal(t, "u-1", s.principal.UserID)
}

func TestGateVerifiedUser(t *testing.T) {
	auth := &fakeAuth{principal: &dashauth.Principal{UserID: "u-1", IsVerified: true}}

	rec, s := serve(t, auth, "/dashboard/sales", "sid")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.principal)
	assert.Equal(t, "u-1", s.principal.UserID)
	assert.Empty(t, rec.Result().Cookies(), "gate never writes cookies for live sessions")
}

func TestGateFailsClosedOnUnexpectedError(t *testing.T) {
	auth := &fakeAuth{err: errors.New("boom")}

	rec, s := serve(t, auth, "/dashboard", "sid")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.False(t, s.called)
	assert.Zero(t, auth.cleared)

	rec, s = serve(t, auth, "/about", "sid")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.called)
	assert.Nil(t, s.principal)
}

func TestGateOptions(t *testing.T) {
	auth := &fakeAuth{principal: &dashauth.Principal{UserID: "u-1"}}

	rec, _ := serve(t, auth, "/dashboard", "sid", WithVerifyPath("/confirm"))
	assert.Equal(t, "/confirm", rec.Header().Get("Location"))

	rec, _ = serve(t, &fakeAuth{}, "/dashboard", "", WithLoginPath("/signin"))
	assert.Equal(t, "/signin", rec.Header().Get("Location"))

	var got Denial
	rec, _ = serve(t, auth, "/api/me", "sid", WithDenyHandler(func(w http.ResponseWriter, _ *http.Request, reason Denial) {
		got = reason
		w.WriteHeader(http.StatusForbidden)
	}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, DenyUnverified, got)

	verified := &fakeAuth{principal: &dashauth.Principal{UserID: "u-1", IsVerified: true}}
	rec, s := serve(t, verified, "/login", "sid", WithAuthenticatedHome("/dashboard"))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	assert.False(t, s.called)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RequireRole(directory.RoleAdmin)(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &dashauth.Principal{Role: directory.RoleUser}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = req.WithContext(WithPrincipal(req.Context(), &dashauth.Principal{Role: directory.RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
