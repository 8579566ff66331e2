package devbridge

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignToken issues a member token the mock and the gateway both accept
// when they share secret.
func SignToken(secret, memberID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": memberID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
