package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type sessionKey struct{}

// withSession resolves the session id from the cookie, issuing a new one
// when the cookie is missing or malformed.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(s.opts.CookieName); err == nil {
			if u, err := uuid.Parse(c.Value); err == nil {
				id = u.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     s.opts.CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(s.opts.CookieTTL.Seconds()),
				HttpOnly: true,
				Secure:   s.opts.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

// sessionID returns the id set by withSession.
func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
