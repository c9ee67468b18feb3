package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hylarucoder/animatediff-webui/internal/auth"
	"github.com/hylarucoder/animatediff-webui/pkg/response"
)

// Identity is the caller a bearer token resolved to.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// AuthMiddleware accepts OIDC tokens checked against a JWKS, falling back to
// HMAC tokens signed with the shared secret.
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string
}

// NewAuthMiddleware creates auth middleware. Either argument may be empty,
// but not both.
func NewAuthMiddleware(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:  verifier,
		jwtSecret: jwtSecret,
	}
}

// Configured reports whether any token source is available.
func (m *AuthMiddleware) Configured() bool {
	return m.verifier != nil || m.jwtSecret != ""
}

// Authenticate validates the bearer token from the Authorization header.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !m.Configured() {
			return response.Unauthorized(c, "Authentication not configured")
		}

		tokenString, ok := BearerToken(c)
		if !ok {
			return response.Unauthorized(c, "Missing or malformed authorization header")
		}

		id, ok := m.Identify(tokenString)
		if !ok {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("userId", id.UserID)
		c.Locals("email", id.Email)
		c.Locals("name", id.Name)
		return c.Next()
	}
}

// Identify tries the JWKS verifier first and the shared secret second.
func (m *AuthMiddleware) Identify(tokenString string) (Identity, bool) {
	if m.verifier != nil {
		if claims, err := m.verifier.Validate(tokenString); err == nil {
			return Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, true
		}
	}
	if m.jwtSecret != "" {
		if claims, err := auth.ValidateLegacyToken(tokenString, m.jwtSecret); err == nil {
			return Identity{UserID: claims.UserID, Email: claims.Email}, true
		}
	}
	return Identity{}, false
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *fiber.Ctx) (string, bool) {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) string {
	if email, ok := c.Locals("email").(string); ok {
		return email
	}
	return ""
}
