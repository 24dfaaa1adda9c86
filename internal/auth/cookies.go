package auth

import (
	"net/http"
	"time"
)

const (
	SessionCookieName = "session_token"
	clientTypeHeader  = "X-Client-Type"
)

// ShouldUseCookies reports whether the caller is a browser client that expects
// the session in an HttpOnly cookie instead of the response body
func ShouldUseCookies(r *http.Request) bool {
	if r.Header.Get(clientTypeHeader) == "web" {
		return true
	}
	return r.Header.Get("Origin") != ""
}

// SetSessionCookie writes the session token cookie
func SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(w http.ResponseWriter, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetSessionTokenFromCookie reads the session token cookie
func GetSessionTokenFromCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
