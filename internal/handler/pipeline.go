package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/hylarucoder/animatediff-webui/internal/model"
	"github.com/hylarucoder/animatediff-webui/internal/service"
	"github.com/hylarucoder/animatediff-webui/pkg/response"
)

type PipelineHandler struct {
	service   *service.RenderService
	validator *validator.Validate
	log       zerolog.Logger
}

func NewPipelineHandler(svc *service.RenderService, v *validator.Validate, logger zerolog.Logger) *PipelineHandler {
	return &PipelineHandler{
		service:   svc,
		validator: v,
		log:       logger,
	}
}

// Submit handles POST /api/pipeline/submit
func (h *PipelineHandler) Submit(c *fiber.Ctx) error {
	var req model.RenderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return response.ValidationError(c, verr.Error(), verr)
		}
		h.log.Error().Err(err).Msg("submit failed")
		return response.ServiceError(c, "Failed to submit render")
	}

	if result.Deduplicated {
		return response.OK(c, result)
	}
	return response.Accepted(c, result)
}

// Status handles GET /api/pipeline/status/:pid
func (h *PipelineHandler) Status(c *fiber.Ctx) error {
	id, err := pipelineID(c)
	if err != nil {
		return response.ValidationError(c, "Pipeline ID must be a positive integer", nil)
	}

	job, err := h.service.Status(id)
	if err != nil {
		return h.notFoundOr(c, err)
	}
	return response.OK(c, model.StatusResponse{Job: job, Progress: job.Progress()})
}

// Current handles GET /api/pipeline/current
func (h *PipelineHandler) Current(c *fiber.Ctx) error {
	job, err := h.service.Current()
	if err != nil {
		return h.notFoundOr(c, err)
	}
	return response.OK(c, model.StatusResponse{Job: job, Progress: job.Progress()})
}

// Jobs handles GET /api/pipeline/jobs
func (h *PipelineHandler) Jobs(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"jobs": h.service.Jobs()})
}

// Interrupt handles POST /api/pipeline/interrupt/:pid
func (h *PipelineHandler) Interrupt(c *fiber.Ctx) error {
	id, err := pipelineID(c)
	if err != nil {
		return response.ValidationError(c, "Pipeline ID must be a positive integer", nil)
	}

	result, err := h.service.Interrupt(id)
	if err != nil {
		return h.notFoundOr(c, err)
	}
	return response.Accepted(c, result)
}

func (h *PipelineHandler) notFoundOr(c *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrJobNotFound) {
		return response.NotFound(c, "Pipeline not found")
	}
	h.log.Error().Err(err).Msg("pipeline lookup failed")
	return response.ServiceError(c, "Failed to read pipeline")
}

func pipelineID(c *fiber.Ctx) (int, error) {
	id, err := c.ParamsInt("pid")
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("pipeline id must be positive")
	}
	return id, nil
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		out := make(map[string]string)
		for _, e := range validationErrors {
			out[e.Namespace()] = e.Tag()
		}
		return out
	}
	return nil
}
