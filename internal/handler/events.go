package handler

import (
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/hylarucoder/animatediff-webui/internal/middleware"
	ws "github.com/hylarucoder/animatediff-webui/internal/websocket"
	"github.com/hylarucoder/animatediff-webui/pkg/response"
)

type EventsHandler struct {
	hub  *ws.Hub
	auth *middleware.AuthMiddleware
}

// NewEventsHandler creates the websocket handler. A nil auth leaves the
// stream open.
func NewEventsHandler(hub *ws.Hub, auth *middleware.AuthMiddleware) *EventsHandler {
	return &EventsHandler{hub: hub, auth: auth}
}

// Upgrade guards /ws. Browsers cannot set headers on websocket requests, so
// the token comes in the query string.
func (h *EventsHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if h.auth != nil {
		if _, ok := h.auth.Identify(c.Query("token")); !ok {
			return response.Unauthorized(c, "Invalid or expired token")
		}
	}
	return c.Next()
}

// Stream handles GET /ws/pipeline/:pid
func (h *EventsHandler) Stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		id, err := strconv.Atoi(c.Params("pid"))
		if err != nil || id <= 0 {
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid pipeline id"))
			return
		}
		h.hub.HandleConnection(c, id)
	})
}
