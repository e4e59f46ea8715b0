package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labelscan/portal/internal/observability"
	"github.com/labelscan/portal/internal/services"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	WorkspaceContextKey  contextKey = "workspace"
	TokenStoreContextKey contextKey = "token_store"
)

// GetWorkspaceFromContext retrieves the request's workspace
func GetWorkspaceFromContext(ctx context.Context) *services.Workspace {
	if ws, ok := ctx.Value(WorkspaceContextKey).(*services.Workspace); ok {
		return ws
	}
	return nil
}

// GetTokenStoreFromContext retrieves the cookie token store bound to the request
func GetTokenStoreFromContext(ctx context.Context) services.TokenStore {
	if store, ok := ctx.Value(TokenStoreContextKey).(services.TokenStore); ok {
		return store
	}
	return nil
}

// Workspace attaches the caller's workspace to the request context, creating
// one for new visitors. A workspace that is not yet authenticated replays the
// token kept in the cookie.
func Workspace(store *SessionStore, registry *services.WorkspaceRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := store.Load(r)
			id, _ := session.Values[workspaceKey].(string)

			ws, created := registry.GetOrCreate(id)
			if created {
				session.Values[workspaceKey] = ws.ID
				if err := session.Save(r, w); err != nil {
					observability.WithContext(r.Context()).Errorf("Failed to save session: %v", err)
					writeError(w, http.StatusInternalServerError, "Internal server error.")
					return
				}
			}

			trace.SpanFromContext(r.Context()).SetAttributes(observability.WorkspaceID(ws.ID))

			tokens := store.TokenStore(session, w, r)
			if err := ws.Restore(r.Context(), tokens); err != nil {
				observability.WithContext(r.Context()).Warnf("Failed to restore session: %v", err)
			}

			ctx := context.WithValue(r.Context(), WorkspaceContextKey, ws)
			ctx = context.WithValue(ctx, TokenStoreContextKey, services.TokenStore(tokens))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests whose workspace is not logged in
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws := GetWorkspaceFromContext(r.Context())
		if ws == nil || !ws.Session().Authenticated {
			writeError(w, http.StatusUnauthorized, "Authentication required.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
