package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/session"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/store"
)

const sessionCookie = "olyfo_session"

// sessionHandler is a handler that only runs for a signed-in caller.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// withSession restores the session from the cookie and passes it on
// explicitly. Without one the browser is sent back to the login page.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.currentSession(r)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				log.FromContext(r.Context()).InfoContext(r.Context(), "Session not restored",
					log.FieldOperation, log.OpRestore, log.FieldError, err)
			}
			s.clearCookie(w)
			s.toLogin(w, r)
			return
		}
		next(w, r, sess)
	}
}

func (s *Server) currentSession(r *http.Request) (*session.Session, error) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil, session.ErrNoSession
	}
	return s.sessions.Restore(r.Context(), c.Value)
}

func (s *Server) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessions.TokenMaxAge().Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// toLogin navigates to the login page. htmx requests get HX-Redirect so the
// whole page changes instead of a fragment.
func (s *Server) toLogin(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").NoSwap().Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view := indexView{Sections: sections}
	if sess, err := s.currentSession(r); err == nil {
		view.SignedIn = true
		view.Email = sess.User().Email
	} else if !errors.Is(err, session.ErrNoSession) {
		s.clearCookie(w)
	}
	s.render(w, r, http.StatusOK, "index.html", view)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.metrics.loginFailures.Add(1)
		s.render(w, r, http.StatusBadRequest, "index.html", indexView{Sections: sections, Error: "Login failed: malformed request"})
		return
	}

	_, token, err := s.sessions.SignIn(ctx, p.Get("email"), p.Get("password"))
	if err != nil {
		s.metrics.loginFailures.Add(1)
		msg, status := loginFailure(err)
		if status >= http.StatusInternalServerError {
			s.sl.LogError(ctx, "Sign-in backend failure", err, log.ComponentSession, log.OpSignIn, nil)
		}
		if p.IsJSON() {
			writeJSON(w, status, map[string]string{"error": "Login failed: " + msg})
			return
		}
		s.render(w, r, status, "index.html", indexView{Sections: sections, Error: "Login failed: " + msg})
		return
	}

	s.metrics.logins.Add(1)
	s.setCookie(w, token)
	if p.IsJSON() {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// loginFailure picks the message shown after "Login failed: ". Backend
// rejections keep their own text; transport failures are not echoed.
func loginFailure(err error) (string, int) {
	var ae *store.AuthError
	switch {
	case errors.As(err, &ae):
		return ae.Message, http.StatusUnauthorized
	case errors.Is(err, store.ErrInvalidCredentials):
		return store.ErrInvalidCredentials.Error(), http.StatusUnauthorized
	default:
		return "authentication service unavailable", http.StatusBadGateway
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		s.sessions.SignOut(r.Context(), c.Value)
		s.metrics.logouts.Add(1)
	}
	s.clearCookie(w)
	s.toLogin(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
