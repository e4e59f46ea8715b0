package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labelscan/portal/internal/middleware"
	"github.com/labelscan/portal/internal/models"
	"github.com/labelscan/portal/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, models.ErrorResponse{Error: message})
}

func jsonBody(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// wantsJSON reports whether the caller is script rather than a form post
func wantsJSON(r *http.Request) bool {
	return jsonBody(r) || strings.Contains(r.Header.Get("Accept"), "application/json")
}

// redirectHome finishes a form post by sending the browser back to the page
func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// finish answers a mutating request: JSON callers get status and v, form
// posts are redirected to the page which renders the new state.
func finish(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	if wantsJSON(r) {
		respondJSON(w, status, v)
		return
	}
	redirectHome(w, r)
}

// fail answers a rejected request the same way finish does
func fail(w http.ResponseWriter, r *http.Request, status int, message string) {
	if wantsJSON(r) {
		respondError(w, status, message)
		return
	}
	redirectHome(w, r)
}

func workspaceOf(w http.ResponseWriter, r *http.Request) (*services.Workspace, bool) {
	ws := middleware.GetWorkspaceFromContext(r.Context())
	if ws == nil {
		respondError(w, http.StatusInternalServerError, "Internal server error.")
		return nil, false
	}
	return ws, true
}
