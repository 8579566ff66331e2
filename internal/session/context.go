package session

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// MemberIDKey is the fiber.Ctx local holding the authenticated member id.
const MemberIDKey = "member_id"

// Claim names that carry the member id, in lookup order.
var memberIDClaims = []string{
	"sub",
	"nameid",
	"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier",
}

// GetMemberID returns the member id resolved by the auth middleware, or
// extracts it from the JWT claims in context.
func GetMemberID(c *fiber.Ctx) (string, error) {
	if id, ok := c.Locals(MemberIDKey).(string); ok && id != "" {
		return id, nil
	}
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return "", errors.New("invalid token in context")
	}
	return MemberIDFromToken(token)
}

// MemberIDFromToken returns the first non-empty member id claim.
func MemberIDFromToken(token *jwt.Token) (string, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}
	for _, name := range memberIDClaims {
		if id, ok := claims[name].(string); ok && strings.TrimSpace(id) != "" {
			return id, nil
		}
	}
	return "", errors.New("missing member id claim")
}

// GetBearer returns the raw bearer token of the request, forwarded as is
// to the Member API.
func GetBearer(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
