package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenParser never validates signatures; tokens are opaque credentials
// here and only the expiry claim is of interest.
var tokenParser = jwt.NewParser()

// TokenExpiry reads the exp claim of an access token without verifying it.
// It reports false for tokens that are not JWTs or carry no expiry, which
// callers treat as never expiring client-side.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := tokenParser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
