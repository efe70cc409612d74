package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Recepcion-api/internal/application/pipeline"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Pipeline *pipeline.Pipeline
	JobStore pipeline.JobStore
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	jobHandler := NewJobHandler(deps.Pipeline, deps.JobStore)

	// Recepción de documentos (XML UBL o imagen según Content-Type)
	api.Post("/documents", jobHandler.Submit)

	// Seguimiento y acciones sobre jobs
	jobs := api.Group("/jobs")
	jobs.Get("/:id", jobHandler.Get)
	jobs.Get("/:id/result", jobHandler.Result)
	jobs.Post("/:id/retry", jobHandler.Retry)
	jobs.Post("/:id/cancel", jobHandler.Cancel)
	jobs.Post("/:id/approve", jobHandler.Approve)
}
