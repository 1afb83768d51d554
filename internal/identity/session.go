package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	sessionName = "babil-session"
	tokenValue  = "token"

	// LegacyCookie holds the raw token so returning visitors are logged in
	// automatically.
	LegacyCookie = "id"
)

type contextKey string

const tokenContextKey contextKey = "babil.identity.token"

// Sessions keeps the identity token in a signed cookie session.
type Sessions struct {
	store *sessions.CookieStore
}

// NewSessions creates the cookie store.
func NewSessions(sessionKey string) (*Sessions, error) {
	if len(sessionKey) < 32 {
		return nil, errors.New("session key must be at least 32 characters long")
	}
	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options.HttpOnly = true
	store.Options.Path = "/"
	store.Options.SameSite = http.SameSiteLaxMode // Protect against CSRF
	return &Sessions{store: store}, nil
}

func secure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// Token returns the token of the current visitor, falling back to the legacy
// cookie when the session is empty.
func (s *Sessions) Token(r *http.Request) string {
	session, _ := s.store.Get(r, sessionName)
	if token, ok := session.Values[tokenValue].(string); ok && token != "" {
		return token
	}
	if c, err := r.Cookie(LegacyCookie); err == nil {
		return c.Value
	}
	return ""
}

// SetToken logs the visitor in as token.
func (s *Sessions) SetToken(w http.ResponseWriter, r *http.Request, token string) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values[tokenValue] = token
	session.Options.Secure = secure(r)
	if err := session.Save(r, w); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     LegacyCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure(r),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear logs the visitor out and expires the legacy cookie.
func (s *Sessions) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, sessionName)
	delete(session.Values, tokenValue)
	session.Options.Secure = secure(r)
	if err := session.Save(r, w); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{Name: LegacyCookie, Value: "", Path: "/", MaxAge: -1})
	return nil
}

// WithToken adds the current token to the request context.
func (s *Sessions) WithToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), tokenContextKey, s.Token(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFrom returns the token stored by WithToken.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
