package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Patrick-De-Lara/todovault/internal/models"
)

// authCookieName is the cookie fallback for browser clients that do not set
// the Authorization header.
const authCookieName = "auth_token"

type contextKey string

const userContextKey contextKey = "user"

// requireAuth resolves the access token from the Authorization header or the
// auth_token cookie and attaches the authenticated user to the request
// context. Requests without a valid token get 401.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(authCookieName); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			s.respondMessage(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}

		user, err := s.svc.Authenticate(r.Context(), token)
		if err != nil {
			s.respondMessage(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// currentUser returns the authenticated user set by requireAuth. It must
// only be called from handlers behind that middleware.
func currentUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(userContextKey).(*models.User)
	return user
}
