package backend

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpired reports whether a JWT bearer token carries an exp claim in the
// past. Signature is not verified here; the backend does that. Tokens that are
// not JWTs, or carry no exp, are never considered expired.
func tokenExpired(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	t, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := t.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
