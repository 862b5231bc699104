package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// TokenFromContext returns the validated bearer token, if the request passed
// through the Bearer middleware with auth enabled.
func TokenFromContext(ctx context.Context) (*Token, bool) {
	t, ok := ctx.Value(contextKey{}).(*Token)
	return t, ok
}

// Bearer validates the Authorization header against the token store and puts
// the token metadata in the request context. When enabled is false the
// middleware passes every request through untouched.
func Bearer(store *Store, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
				oauthError(w, http.StatusUnauthorized, "invalid_request", "missing bearer token")
				return
			}
			const prefix = "bearer "
			if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mcp", error="invalid_token"`)
				oauthError(w, http.StatusUnauthorized, "invalid_token", "authorization header is not a bearer token")
				return
			}

			token, err := store.ValidateAccessToken(r.Context(), strings.TrimSpace(header[len(prefix):]))
			if err != nil {
				oauthError(w, http.StatusInternalServerError, "server_error", "token validation failed")
				return
			}
			if token == nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mcp", error="invalid_token"`)
				oauthError(w, http.StatusUnauthorized, "invalid_token", "access token is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose token lacks the scope. The parent
// "mcp" scope grants every "mcp:*" subscope. Requests that never passed
// through an enabled Bearer middleware carry no token and pass through.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := TokenFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if !hasScope(token.Scope, scope) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mcp", error="insufficient_scope"`)
				oauthError(w, http.StatusForbidden, "insufficient_scope", "token does not grant "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasScope(granted, want string) bool {
	for _, g := range strings.Fields(granted) {
		if g == want {
			return true
		}
		if g == "mcp" && strings.HasPrefix(want, "mcp:") {
			return true
		}
	}
	return false
}
