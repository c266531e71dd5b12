package handoff

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const cookieName = "pickleboom_checkout"

// Sessions binds the browser that opened a checkout to its order code, so
// return/cancel/exit requests from any other browser are refused.
type Sessions struct {
	sc     *securecookie.SecureCookie
	maxAge time.Duration
}

type binding struct {
	Order string
	Nonce string
}

func NewSessions(hashKey, blockKey []byte, maxAge time.Duration) *Sessions {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(maxAge.Seconds()))
	return &Sessions{sc: sc, maxAge: maxAge}
}

func (s *Sessions) Bind(w http.ResponseWriter, r *http.Request, orderCode string) error {
	encoded, err := s.sc.Encode(cookieName, binding{Order: orderCode, Nonce: uuid.NewString()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(s.maxAge.Seconds()),
	})
	return nil
}

func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// Bound returns the order code carried by the request's cookie.
func (s *Sessions) Bound(r *http.Request) (string, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	var b binding
	if err := s.sc.Decode(cookieName, c.Value, &b); err != nil {
		return "", false
	}
	return b.Order, b.Order != ""
}
