package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/sheets/internal/core"
	"github.com/JonMunkholm/sheets/internal/logging"
	mw "github.com/JonMunkholm/sheets/internal/web/middleware"
)

type ctxKey int

const sessionKey ctxKey = iota

// sessionMiddleware resolves the caller's session from the session cookie,
// starting a new one when the cookie is missing or unknown. Client details
// are attached to the context for the audit trail.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	name := s.cfg.Session.CookieName
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(name); err == nil {
			id = c.Value
		}

		sess, created := s.sessions.GetOrCreate(id)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    sess.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.cfg.Session.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
			logging.FromContext(r.Context()).Debug("session started", "session_id", sess.ID)
		}

		mw.AddLogFields(r.Context(), "session_id", sess.ID)

		ctx := core.ContextWithClient(r.Context(), core.ClientInfo{
			IPAddress: mw.ClientIP(r),
			UserAgent: r.UserAgent(),
			SessionID: sess.ID,
		})
		ctx = context.WithValue(ctx, sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleEndSession drops the caller's session with its tables and expires
// the cookie. The next request starts a fresh session.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	s.sessions.Remove(sess.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	logging.FromContext(r.Context()).Info("session ended")
	w.WriteHeader(http.StatusNoContent)
}

// sessionFrom returns the session resolved by sessionMiddleware.
func sessionFrom(r *http.Request) *core.Session {
	sess, _ := r.Context().Value(sessionKey).(*core.Session)
	return sess
}
