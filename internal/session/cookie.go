package session

import (
	"net/http"

	"github.com/your-org/facegate/internal/models"
)

// Cookies writes and clears the session cookie with the transport
// attributes the deployment requires.
type Cookies struct {
	Name   string
	Secure bool
}

// Set attaches the session token to the response.
func (c Cookies) Set(w http.ResponseWriter, s *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ExpiresAt.Sub(s.IssuedAt).Seconds()),
	})
}

// Clear removes the session cookie.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Read returns the session token from the request cookie, or "" if absent.
func (c Cookies) Read(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
