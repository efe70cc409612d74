package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/Recepcion-api/internal/application/pipeline"
	"github.com/jhoicas/Recepcion-api/internal/domain/tax"
	infraai "github.com/jhoicas/Recepcion-api/internal/infrastructure/ai"
	"github.com/jhoicas/Recepcion-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/Recepcion-api/internal/interfaces/http"
	"github.com/jhoicas/Recepcion-api/pkg/config"
	"github.com/jhoicas/Recepcion-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	jobStore := postgres.NewJobStore(pool)

	classifier := infraai.NewAnthropicClassifier(cfg.AI.AnthropicAPIKey, cfg.AI.AnthropicModel)
	vision := infraai.NewGeminiVision(cfg.AI.GeminiAPIKey, cfg.AI.GeminiModel)

	engine := tax.NewEngine(tax.DefaultTables(), nil)

	pipe := pipeline.New(jobStore, classifier, vision, engine,
		pipeline.ClassificationHints{
			TaxRegime:   cfg.Tax.TaxRegime,
			DefaultCity: cfg.Tax.DefaultCity,
		},
		pipeline.Config{
			MaxAttempts:     cfg.Pipeline.MaxAttempts,
			ClassifyTimeout: cfg.Pipeline.ClassifyTimeout,
			LeaseTTL:        cfg.Pipeline.LeaseTTL,
		},
		log,
	)

	// Worker pool: sondea jobs encolados y los procesa con concurrencia acotada.
	workers := pipeline.NewWorkerPool(jobStore, pipe, pipeline.WorkerConfig{
		PollInterval: cfg.Pipeline.PollInterval,
		Concurrency:  cfg.Pipeline.Concurrency,
	}, log)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		workers.Start(workerCtx)
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    10 * 1024 * 1024, // XML UBL e imágenes escaneadas
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Pipeline: pipe,
		JobStore: jobStore,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	// Detener el sondeo y esperar los jobs en vuelo.
	stopWorkers()
	wg.Wait()

	log.Info().Msg("aplicación detenida")
}
