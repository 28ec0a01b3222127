// Package http provides HTTP middleware shared by the bot's endpoints.
package http

import (
	"net/http"
	"strings"

	"github.com/txn2/factcheck-bot/pkg/auth"
)

// AuthMiddleware extracts the bearer token from the Authorization header and
// adds it to the request context. It does not validate the token.
func AuthMiddleware(requireAuth bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)

			if requireAuth && token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "Unauthorized: missing authentication token", http.StatusUnauthorized)
				return
			}

			if token != "" {
				r = r.WithContext(auth.WithToken(r.Context(), token))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns middleware that rejects requests without a bearer token.
func RequireAuth() func(http.Handler) http.Handler {
	return AuthMiddleware(true)
}

// OptionalAuth returns middleware that allows anonymous requests.
func OptionalAuth() func(http.Handler) http.Handler {
	return AuthMiddleware(false)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
