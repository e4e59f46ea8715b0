package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labelscan/portal/internal/middleware"
	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/observability"
)

// AuthHandler handles the login modal and logout
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	User          string `json:"user,omitempty"`
}

// Login exchanges credentials for a token and keeps it in the session cookie
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} sessionResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if jsonBody(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	tokens := middleware.GetTokenStoreFromContext(r.Context())
	if err := ws.Login(r.Context(), tokens, req.Username, req.Password); err != nil {
		var credErr models.CredentialError
		if !errors.As(err, &credErr) {
			observability.WithContext(r.Context()).Errorf("Login failed: %v", err)
		}
		fail(w, r, http.StatusUnauthorized, err.Error())
		return
	}

	session := ws.Session()
	finish(w, r, http.StatusOK, sessionResponse{Authenticated: true, User: session.User})
}

// Logout clears the session and the stored token
// @Summary Log out
// @Tags auth
// @Produce json
// @Success 200 {object} sessionResponse
// @Router /logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceOf(w, r)
	if !ok {
		return
	}

	tokens := middleware.GetTokenStoreFromContext(r.Context())
	if err := ws.Logout(r.Context(), tokens); err != nil {
		observability.WithContext(r.Context()).Warnf("Failed to clear token: %v", err)
	}
	finish(w, r, http.StatusOK, sessionResponse{})
}
