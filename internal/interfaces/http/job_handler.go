package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Recepcion-api/internal/application/dto"
	"github.com/jhoicas/Recepcion-api/internal/application/pipeline"
	"github.com/jhoicas/Recepcion-api/internal/domain"
)

// JobHandler maneja las peticiones HTTP de recepción y seguimiento de jobs.
type JobHandler struct {
	pipe  *pipeline.Pipeline
	store pipeline.JobStore
}

// NewJobHandler construye el handler.
func NewJobHandler(pipe *pipeline.Pipeline, store pipeline.JobStore) *JobHandler {
	return &JobHandler{pipe: pipe, store: store}
}

// Submit recibe un documento (XML UBL o imagen) y encola su procesamiento.
// El mismo XML canónico devuelve el job existente (200) en lugar de crear
// uno nuevo (201).
// POST /api/documents
func (h *JobHandler) Submit(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "documento vacío"})
	}

	mimeType := strings.TrimSpace(strings.Split(c.Get(fiber.HeaderContentType), ";")[0])
	if mimeType == "" {
		mimeType = "application/xml"
	}

	job, created, err := h.pipe.Submit(c.Context(), body, mimeType)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedDocument) || errors.Is(err, domain.ErrInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MALFORMED_DOCUMENT", Message: err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(dto.ToJobResponse(job))
}

// Get devuelve el estado y avance del job.
// GET /api/jobs/:id
func (h *JobHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	job, err := h.store.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "job no encontrado"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(dto.ToJobResponse(job))
}

// Result devuelve extracción, clasificación y liquidación (montos redondeados
// a dos decimales en la respuesta).
// GET /api/jobs/:id/result
func (h *JobHandler) Result(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}
	job, err := h.store.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "job no encontrado"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if job.Extraction == nil {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "NOT_READY", Message: "el job aún no tiene resultados"})
	}
	return c.JSON(dto.ToResultResponse(job))
}

// Retry re-encola un job fallido si quedan intentos.
// POST /api/jobs/:id/retry
func (h *JobHandler) Retry(c *fiber.Ctx) error {
	job, err := h.pipe.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return h.actionError(c, err, "no se puede reintentar")
	}
	return c.JSON(dto.ToJobResponse(job))
}

// Cancel solicita la cancelación cooperativa del job.
// POST /api/jobs/:id/cancel
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	if err := h.pipe.Cancel(c.Context(), c.Params("id")); err != nil {
		return h.actionError(c, err, "no se puede cancelar")
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// Approve entrega el job al flujo de aprobación: ready_for_review → completed.
// POST /api/jobs/:id/approve
func (h *JobHandler) Approve(c *fiber.Ctx) error {
	job, err := h.pipe.Approve(c.Context(), c.Params("id"))
	if err != nil {
		return h.actionError(c, err, "no se puede aprobar")
	}
	return c.JSON(dto.ToJobResponse(job))
}

// actionError mapea errores de dominio de las acciones de job a HTTP.
func (h *JobHandler) actionError(c *fiber.Ctx, err error, prefix string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "job no encontrado"})
	case errors.Is(err, domain.ErrLeaseHeld):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "LEASE_HELD", Message: prefix + ": el job está siendo procesado"})
	case errors.Is(err, domain.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INVALID_TRANSITION", Message: err.Error()})
	case errors.Is(err, domain.ErrMaxAttempts):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "MAX_ATTEMPTS", Message: prefix + ": intentos agotados"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
