package engine

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireAdmin guards admin endpoints (market creation, resolution, lock)
// with a static token, accepted as `Authorization: Bearer <token>` or
// `X-Admin-Token`. Authorization itself lives with the identity provider;
// this is the engine-side check that must pass before resolution runs.
// An empty configured token disables the endpoints entirely rather than
// leaving them open.
func RequireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, "admin endpoints disabled", http.StatusForbidden)
				return
			}

			presented := extractToken(r)
			if presented == "" {
				writeError(w, "missing admin token", http.StatusUnauthorized)
				return
			}

			// Constant-time comparison to prevent timing attacks.
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeError(w, "invalid admin token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken looks for a token in the Authorization header (Bearer
// scheme) or in the X-Admin-Token header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-Admin-Token"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}
