package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hylarucoder/animatediff-webui/internal/middleware"
)

// AuthHandler answers ForwardAuth checks from a gateway in front of the
// media and API routes.
type AuthHandler struct {
	auth *middleware.AuthMiddleware
}

func NewAuthHandler(m *middleware.AuthMiddleware) *AuthHandler {
	return &AuthHandler{auth: m}
}

// Verify handles GET /auth/verify. It returns 200 with X-User-* headers on
// success and a bare 401 otherwise.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	tokenString, ok := middleware.BearerToken(c)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	id, ok := h.auth.Identify(tokenString)
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	c.Set("X-User-Id", id.UserID)
	c.Set("X-User-Email", id.Email)
	c.Set("X-User-Name", id.Name)
	return c.SendStatus(fiber.StatusOK)
}
