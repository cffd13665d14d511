package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pharmalens/dashauth"
	"github.com/pharmalens/dashauth/middleware"
	"github.com/rs/zerolog/hlog"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

type userBody struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	IsVerified bool      `json:"isVerified"`
	ExpiresAt  time.Time `json:"sessionExpiresAt"`
}

func userFrom(p *dashauth.Principal) userBody {
	return userBody{
		ID:         p.UserID,
		Username:   p.Username,
		Email:      p.Email,
		Name:       p.Name,
		Role:       string(p.Role),
		IsVerified: p.IsVerified,
		ExpiresAt:  p.ExpiresAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// fail maps engine errors to a status and a message safe to show users.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dashauth.ErrValidation):
		msg := dashauth.ValidationReason(err)
		if msg == "" {
			msg = "invalid request"
		}
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, dashauth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, dashauth.ErrInvalidCredentials.Error())
	case errors.Is(err, dashauth.ErrUnauthenticated), errors.Is(err, dashauth.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "not signed in")
	case errors.Is(err, dashauth.ErrIncorrectPassword):
		writeError(w, http.StatusBadRequest, dashauth.ErrIncorrectPassword.Error())
	case errors.Is(err, dashauth.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, dashauth.ErrTokenInvalid.Error())
	case errors.Is(err, dashauth.ErrAccountExists):
		writeError(w, http.StatusConflict, "an account with that email or username already exists")
	case errors.Is(err, dashauth.ErrLoginRateLimited), errors.Is(err, dashauth.ErrMailRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many requests, try again later")
	case errors.Is(err, dashauth.ErrMailDelivery):
		writeError(w, http.StatusBadGateway, "could not send email, try again later")
	case errors.Is(err, dashauth.ErrUnavailable):
		hlog.FromRequest(r).Error().Err(err).Msg("auth backend unavailable")
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *api) deny(w http.ResponseWriter, _ *http.Request, reason middleware.Denial) {
	if reason == middleware.DenyUnverified {
		writeError(w, http.StatusForbidden, "email verification required")
		return
	}
	writeError(w, http.StatusUnauthorized, "not signed in")
}
