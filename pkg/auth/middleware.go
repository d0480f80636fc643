package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type identityKey struct{}

// Identity returns the reporter identity the middleware attached to the
// request context, or "" when the request was not authenticated.
func Identity(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}

// WithIdentity is exposed for handler tests that bypass the middleware.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// Middleware verifies the Bearer token on every request and stores the
// session identity in the request context. Paths listed in bypass are
// served without a token.
func (m *Manager) Middleware(bypass ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			token := ""
			if header := r.Header.Get("Authorization"); header != "" {
				parts := strings.SplitN(header, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					unauthorized(w, "invalid authorization header format")
					return
				}
				token = parts[1]
			} else {
				// EventSource cannot set headers, so the live stream
				// endpoint accepts the token as a query parameter.
				token = r.URL.Query().Get("access_token")
			}
			if token == "" {
				unauthorized(w, "missing credentials")
				return
			}
			identity, err := m.Verify(token)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
