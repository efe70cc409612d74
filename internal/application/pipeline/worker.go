package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jhoicas/Recepcion-api/internal/domain"
	"github.com/jhoicas/Recepcion-api/pkg/logger"
)

// WorkerConfig parámetros del pool de workers.
type WorkerConfig struct {
	PollInterval time.Duration
	Concurrency  int
	JobTimeout   time.Duration // presupuesto total por ejecución de job
}

// WorkerPool sondea jobs encolados y los despacha al pipeline con
// concurrencia acotada. La secuencia de etapas de cada job corre completa en
// un solo worker; la exclusividad entre workers la da el lease, así que un
// ErrLeaseHeld aquí es una carrera perdida sin consecuencias.
type WorkerPool struct {
	store JobStore
	pipe  *Pipeline
	cfg   WorkerConfig
	log   *logger.Logger
	wg    sync.WaitGroup
}

// NewWorkerPool construye el pool.
func NewWorkerPool(store JobStore, pipe *Pipeline, cfg WorkerConfig, log *logger.Logger) *WorkerPool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WorkerPool{store: store, pipe: pipe, cfg: cfg, log: log}
}

// Start corre el loop de sondeo hasta que ctx se cancela y bloquea hasta que
// terminen los jobs en vuelo (shutdown limpio).
func (w *WorkerPool) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.cfg.Concurrency)

	w.log.Info().
		Dur("poll", w.cfg.PollInterval).
		Int("concurrency", w.cfg.Concurrency).
		Msg("worker pool iniciado")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker pool: apagando, esperando jobs en vuelo")
			w.wg.Wait()
			w.log.Info().Msg("worker pool: apagado completo")
			return
		case <-ticker.C:
			available := w.cfg.Concurrency - len(sem)
			if available <= 0 {
				continue
			}

			ids, err := w.store.ListQueued(ctx, available)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				w.log.Error().Err(err).Msg("worker pool: error listando jobs encolados")
				continue
			}

			for _, id := range ids {
				jobID := id
				sem <- struct{}{}
				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }()

					// Contexto propio, independiente del de sondeo: un job
					// en vuelo termina aunque el pool esté apagándose.
					jobCtx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
					defer cancel()

					if err := w.pipe.Process(jobCtx, jobID); err != nil {
						if errors.Is(err, domain.ErrLeaseHeld) {
							w.log.Debug().Str("job_id", jobID).Msg("lease en poder de otro worker, se omite")
							return
						}
						w.log.Warn().Str("job_id", jobID).Err(err).Msg("job terminó con error de etapa")
					}
				}()
			}
		}
	}
}
