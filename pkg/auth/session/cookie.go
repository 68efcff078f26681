package session

import (
	"net/http"
	"time"
)

// Cookie names for the session token. The __Secure- prefix is only valid
// on cookies set over https, so the name depends on the transport.
const (
	cookieName       = "idbridge_session"
	secureCookieName = "__Secure-idbridge_session"
)

// CookieName returns the session cookie name for the transport.
func CookieName(secure bool) string {
	if secure {
		return secureCookieName
	}
	return cookieName
}

// SetCookie delivers the session token to the client as an http-only,
// same-site-lax cookie scoped to the whole application.
func SetCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName(secure),
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on sign-out.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName(secure),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest extracts the session token from the request: the session
// cookie under either transport name, or a bearer Authorization header
// for API clients.
func FromRequest(r *http.Request) string {
	for _, name := range []string{secureCookieName, cookieName} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	return ""
}
