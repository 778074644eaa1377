package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pliu/smartaid/internal/auth"
	"github.com/pliu/smartaid/internal/logging"
	"github.com/pliu/smartaid/internal/models"
	"github.com/pliu/smartaid/internal/store"
)

type Credentials struct {
	Username string `json:"username" validate:"required,notblank,max=150"`
	Password string `json:"password" validate:"required"`
}

type SignupRequest struct {
	Username string `json:"username" validate:"required,notblank,max=150"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type AuthHandler struct {
	Store  store.Store
	Signer *auth.CookieSigner
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		internalError(w, r, err)
		return
	}

	user := &models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    req.Email,
		Password: hashedPassword,
	}
	if err := h.Store.CreateUser(user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondWithError(w, r, http.StatusConflict, "Username already exists", nil)
			return
		}
		internalError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().Int("user_id", user.ID).Msg("User signed up")
	respondWithJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if !decodeAndValidate(w, r, &creds) {
		return
	}

	user, err := h.Store.GetUserByUsername(strings.TrimSpace(creds.Username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, r, http.StatusUnauthorized, "Invalid credentials", nil)
			return
		}
		internalError(w, r, err)
		return
	}
	if !auth.CheckPassword(user.Password, creds.Password) {
		respondWithError(w, r, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	http.SetCookie(w, h.Signer.SessionCookie(user.ID))
	respondWithJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearedSessionCookie())
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
