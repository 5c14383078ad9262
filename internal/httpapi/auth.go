package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireBearer gates a route group behind a static bearer token. The
// comparison is constant-time; an empty configured token rejects everything
// (the daemon refuses to start without one, this is the backstop).
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				unauthorized(w, "authorization header required")
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				unauthorized(w, "invalid authorization header format, use 'Bearer <token>'")
				return
			}
			presented := strings.TrimPrefix(auth, prefix)
			if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				unauthorized(w, "invalid API token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", msg)
}
