package httpapi

import (
	"errors"
	"net/http"

	"github.com/pharmalens/dashauth"
	"github.com/pharmalens/dashauth/middleware"
)

const mailSentMessage = "if an account exists, an email has been sent"

type registerRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type authResponse struct {
	User                 userBody `json:"user"`
	RequiresVerification bool     `json:"requiresVerification"`
	VerificationSent     bool     `json:"verificationSent,omitempty"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := a.engine.Register(r.Context(), w, dashauth.RegisterRequest{
		Username:   req.Username,
		Email:      req.Email,
		Name:       req.Name,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		User:                 userFrom(res.Principal),
		RequiresVerification: res.RequiresVerification,
		VerificationSent:     res.VerificationSent,
	})
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := a.engine.Login(r.Context(), w, dashauth.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		User:                 userFrom(res.Principal),
		RequiresVerification: res.RequiresVerification,
	})
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Logout(r.Context(), w, r); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) verifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, dashauth.ErrTokenInvalid.Error())
		return
	}

	res, err := a.engine.CompleteEmailVerification(r.Context(), w, token)
	if err != nil {
		if res != nil && res.Principal != nil && errors.Is(err, dashauth.ErrUnavailable) {
			// Verified; only the session could not be issued.
			writeJSON(w, http.StatusOK, authResponse{User: userFrom(res.Principal)})
			return
		}
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: userFrom(res.Principal)})
}

func (a *api) resendVerification(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not signed in")
		return
	}
	if p.IsVerified {
		writeJSON(w, http.StatusOK, messageResponse{Message: "email already verified"})
		return
	}

	if err := a.engine.ResendVerificationEmail(r.Context(), p.UserID, p.Email); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: "verification email sent"})
}

func (a *api) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	err := a.engine.RequestPasswordReset(r.Context(), req.Email)
	switch {
	case err == nil:
	case errors.Is(err, dashauth.ErrMailDelivery):
		// Only existing accounts get mail; a delivery error must look like success.
		a.logger.Warn().Err(err).Msg("password reset email")
	default:
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: mailSentMessage})
}

func (a *api) checkResetToken(w http.ResponseWriter, r *http.Request) {
	email, err := a.engine.VerifyPasswordResetToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emailRequest{Email: email})
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}

	if err := a.engine.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Ping(r.Context()); err != nil {
		a.logger.Warn().Err(err).Msg("health check")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
