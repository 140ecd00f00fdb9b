package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"

	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/forms"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/models"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/store"
)

const (
	sessionName = "farm-session"
	tokenKey    = "token"
)

type ctxKey int

const userKey ctxKey = iota

func getSession(ss *sessions.CookieStore, r *http.Request) *sessions.Session {
	session, err := ss.Get(r, sessionName)
	if err != nil {
		// Tampered or stale cookie; Get still returns a fresh session.
		slog.Debug("Discarding unreadable session cookie", "error", err)
	}
	return session
}

func saveSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
	}
}

// CurrentUser returns the user resolved by Authenticate, or nil.
func CurrentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(userKey).(*models.User)
	return u
}

// Authenticate resolves the session token in the cookie to a user and
// stores it in the request context. Anonymous requests pass through.
func Authenticate(st *store.Store, ss *sessions.CookieStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := getSession(ss, r)
			if token, ok := session.Values[tokenKey].(string); ok && token != "" {
				user, err := st.GetSessionUser(r.Context(), token)
				if err != nil {
					slog.Error("Failed to resolve session", "error", err)
				} else if user != nil {
					r = r.WithContext(context.WithValue(r.Context(), userKey, user))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireLogin redirects anonymous visitors to the login page.
func RequireLogin(ss *sessions.CookieStore, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r) != nil {
			next(w, r)
			return
		}
		session := getSession(ss, r)
		session.AddFlash(FlashMessage{Type: "info", Message: "Please log in to access this page."})
		saveSession(w, r, session)

		target := "/login"
		if r.Method == http.MethodGet {
			target += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		slog.Debug("Login required, redirecting", "path", r.URL.Path)
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

// safeNext keeps only local absolute paths, so a crafted next cannot
// redirect off-site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}

// pageData returns the fields every page template reads. Pending flashes
// are consumed, so the session is saved when there were any.
func pageData(w http.ResponseWriter, r *http.Request, ss *sessions.CookieStore) map[string]interface{} {
	session := getSession(ss, r)
	flashes := GetFlash(session)
	if len(flashes) > 0 {
		saveSession(w, r, session)
	}
	return map[string]interface{}{
		"CsrfField":   csrf.TemplateField(r),
		"Flashes":     flashes,
		"CurrentUser": CurrentUser(r),
		"Title":       "",
		"Search":      "",
		"Errors":      forms.Errors(nil),
	}
}
