package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/hylarucoder/animatediff-webui/internal/catalog"
	"github.com/hylarucoder/animatediff-webui/internal/model"
	"github.com/hylarucoder/animatediff-webui/pkg/response"
)

type OptionsHandler struct {
	catalog *catalog.Catalog
	log     zerolog.Logger
}

func NewOptionsHandler(c *catalog.Catalog, logger zerolog.Logger) *OptionsHandler {
	return &OptionsHandler{catalog: c, log: logger}
}

// Options handles GET /api/options
func (h *OptionsHandler) Options(c *fiber.Ctx) error {
	opts, err := h.catalog.Options()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list options")
		return response.ServiceError(c, "Failed to list models")
	}
	return response.OK(c, opts)
}

// Presets handles GET /api/presets
func (h *OptionsHandler) Presets(c *fiber.Ctx) error {
	return response.OK(c, model.PresetList{Presets: h.catalog.Presets()})
}
