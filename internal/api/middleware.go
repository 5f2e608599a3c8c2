package api

// This file contains the middleware guarding the admin routes.

import (
	"net/http"
	"strings"

	"github.com/vrsandeep/mango-updater/internal/auth"
)

// AdminTokenMiddleware checks the bearer token against the configured bcrypt
// hash. Websocket clients that cannot set headers pass it as ?token=.
// An empty hash disables the admin routes.
func (s *Server) AdminTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := s.app.Config().API.TokenHash
		if hash == "" {
			RespondWithError(w, http.StatusForbidden, "Forbidden: Admin API is disabled")
			return
		}

		token := bearerToken(r)
		if token == "" {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized: No admin token")
			return
		}
		if !auth.CheckTokenHash(token, hash) {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized: Invalid admin token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
