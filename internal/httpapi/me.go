package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pharmalens/dashauth"
	"github.com/pharmalens/dashauth/directory"
	"github.com/pharmalens/dashauth/middleware"
)

type profileRequest struct {
	Name string `json:"name"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type sessionsResponse struct {
	ActiveSessions int `json:"activeSessions"`
}

type loginAttemptsResponse struct {
	Email          string `json:"email"`
	FailedAttempts int    `json:"failedAttempts"`
}

// me slides the session forward, so it reads the cookie again instead of
// trusting the gate's principal.
func (a *api) me(w http.ResponseWriter, r *http.Request) {
	p, err := a.engine.CurrentUser(r.Context(), w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userFrom(p))
}

func (a *api) updateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := a.engine.UpdateProfile(r.Context(), w, r, req.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userFrom(p))
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}

	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := a.engine.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) activeSessions(w http.ResponseWriter, r *http.Request) {
	n, err := a.engine.ActiveSessionCount(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{ActiveSessions: n})
}

func (a *api) setRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := a.engine.SetUserRole(r.Context(), chi.URLParam(r, "id"), directory.Role(req.Role))
	if errors.Is(err, dashauth.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userFrom(p))
}

func (a *api) loginAttempts(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	n, err := a.engine.FailedLoginAttempts(r.Context(), email)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginAttemptsResponse{Email: email, FailedAttempts: n})
}
