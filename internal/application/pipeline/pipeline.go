package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Recepcion-api/internal/domain"
	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
	"github.com/jhoicas/Recepcion-api/internal/domain/tax"
	"github.com/jhoicas/Recepcion-api/internal/domain/ubl"
	"github.com/jhoicas/Recepcion-api/pkg/logger"
)

// errCancelled corta la ejecución de etapas cuando hay cancelación
// cooperativa; no cuenta como fallo de etapa.
var errCancelled = errors.New("job cancelado")

// ParseFunc es la firma del parser determinista de documentos XML.
type ParseFunc func(docBytes []byte) (*entity.ExtractionResult, error)

// Config parámetros de la política del pipeline.
type Config struct {
	MaxAttempts     int
	ClassifyTimeout time.Duration
	LeaseTTL        time.Duration
}

// Pipeline orquesta el ciclo completo de un job:
//
//	queued → parsing → classifying → tax_computing → ready_for_review
//
// con checkpoints por etapa (una etapa completada no se re-ejecuta en un
// reintento), reintentos acotados y exclusividad por lease: como máximo una
// ejecución en vuelo por job id.
type Pipeline struct {
	store      JobStore
	parse      ParseFunc
	classifier Classifier
	vision     VisionExtractor
	engine     *tax.Engine
	hints      ClassificationHints
	cfg        Config
	log        *logger.Logger
}

// New construye el pipeline. parse nil usa ubl.Parse; vision puede ser nil
// si no se reciben imágenes.
func New(store JobStore, classifier Classifier, vision VisionExtractor, engine *tax.Engine, hints ClassificationHints, cfg Config, log *logger.Logger) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = 30 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		store:      store,
		parse:      ubl.Parse,
		classifier: classifier,
		vision:     vision,
		engine:     engine,
		hints:      hints,
		cfg:        cfg,
		log:        log,
	}
}

// Submit crea el job para un documento recibido. Para XML la recepción es
// idempotente: los mismos bytes (misma huella canónica) devuelven el job
// existente (created=false) en lugar de crear uno nuevo.
func (p *Pipeline) Submit(ctx context.Context, document []byte, mimeType string) (*entity.ProcessingJob, bool, error) {
	if len(document) == 0 {
		return nil, false, fmt.Errorf("%w: documento vacío", domain.ErrInvalidInput)
	}

	var fingerprint string
	if !isImageMime(mimeType) {
		fp, err := ubl.Fingerprint(document)
		if err != nil {
			return nil, false, err
		}
		fingerprint = fp
		if existing, err := p.store.FindByFingerprint(ctx, fp); err == nil {
			return existing, false, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
	}

	now := time.Now()
	job := &entity.ProcessingJob{
		ID:          uuid.New().String(),
		Stage:       entity.StageQueued,
		MaxAttempts: p.cfg.MaxAttempts,
		Document:    document,
		MimeType:    mimeType,
		Fingerprint: fingerprint,
		Progress: entity.ProgressSnapshot{
			Stage:   entity.StageQueued,
			Percent: 0,
			Message: "documento recibido, en cola",
			At:      now,
			Seq:     1,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.Create(ctx, job); err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// Process ejecuta las etapas pendientes del job bajo lease exclusivo.
// Un segundo worker que intente el mismo job recibe domain.ErrLeaseHeld de
// AcquireLease y aborta sin efectos secundarios (no cuenta como intento).
func (p *Pipeline) Process(ctx context.Context, jobID string) error {
	owner := uuid.New().String()
	if err := p.store.AcquireLease(ctx, jobID, owner, p.cfg.LeaseTTL); err != nil {
		return err
	}
	defer func() {
		_ = p.store.ReleaseLease(context.WithoutCancel(ctx), jobID, owner)
	}()

	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Stage.Terminal() {
		return nil
	}

	if job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}

	if err := p.run(ctx, job); err != nil {
		if errors.Is(err, errCancelled) {
			return nil
		}
		return p.failStage(ctx, job, err)
	}
	return nil
}

// run recorre las etapas pendientes. Cada etapa completada queda como
// checkpoint en el job: un reintento retoma desde la primera etapa sin
// completar y nunca re-invoca un puerto externo que ya respondió.
func (p *Pipeline) run(ctx context.Context, job *entity.ProcessingJob) error {
	// Etapa 1: extracción (parser determinista o OCR según el MIME).
	if job.Extraction == nil {
		if err := p.checkCancel(ctx, job); err != nil {
			return err
		}
		if err := p.advance(ctx, job, entity.StageParsing, "extrayendo datos estructurados del documento"); err != nil {
			return err
		}
		facts, err := p.extract(ctx, job)
		if err != nil {
			return err
		}
		job.Extraction = facts
		if err := p.checkpoint(ctx, job); err != nil {
			return err
		}
	}

	// Etapa 2: clasificación (único punto de I/O de red del flujo).
	if job.Classification == nil {
		if err := p.checkCancel(ctx, job); err != nil {
			return err
		}
		if err := p.advance(ctx, job, entity.StageClassifying, "clasificando el gasto con el proveedor de IA"); err != nil {
			return err
		}
		cctx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
		cls, err := p.classifier.Classify(cctx, job.Extraction, p.hints)
		cancel()
		if err != nil {
			return err
		}
		if err := validateClassification(cls); err != nil {
			return err
		}
		job.Classification = cls
		if err := p.checkpoint(ctx, job); err != nil {
			return err
		}
	}

	// Etapa 3: liquidación tributaria (pura, nunca falla por configuración).
	if job.TaxResult == nil {
		if err := p.checkCancel(ctx, job); err != nil {
			return err
		}
		if err := p.advance(ctx, job, entity.StageTaxComputing, "liquidando impuestos y retenciones"); err != nil {
			return err
		}
		result, err := p.engine.Calculate(job.Extraction, job.Classification)
		if err != nil {
			return err
		}
		job.TaxResult = result
		if err := p.checkpoint(ctx, job); err != nil {
			return err
		}
	}

	// Finalización: listo para revisión externa, con referencias a los tres
	// resultados y finished_at estampado.
	if err := p.checkCancel(ctx, job); err != nil {
		return err
	}
	now := time.Now()
	job.FinishedAt = &now
	if err := p.advance(ctx, job, entity.StageReadyForReview, "liquidación lista para revisión"); err != nil {
		return err
	}
	p.log.Info().
		Str("job_id", job.ID).
		Str("document_id", job.Extraction.DocumentID).
		Msg("job procesado, listo para revisión")
	return nil
}

// extract elige entre el parser determinista (XML) y el puerto OCR (imagen).
func (p *Pipeline) extract(ctx context.Context, job *entity.ProcessingJob) (*entity.ExtractionResult, error) {
	if !isImageMime(job.MimeType) {
		return p.parse(job.Document)
	}
	if p.vision == nil {
		return nil, &domain.ExternalServiceError{
			Service:   "ocr",
			Retryable: false,
			Err:       errors.New("no hay extractor OCR configurado"),
		}
	}
	cctx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
	defer cancel()
	facts, err := p.vision.Extract(cctx, job.Document, job.MimeType)
	if err != nil {
		return nil, err
	}
	if err := validateExtraction(facts); err != nil {
		return nil, err
	}
	return facts, nil
}

// checkCancel consulta el flag cooperativo antes de cada transición. La
// cancelación descarta resultados de llamadas ya despachadas pero no las
// aborta por la fuerza.
func (p *Pipeline) checkCancel(ctx context.Context, job *entity.ProcessingJob) error {
	fresh, err := p.store.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	if !fresh.CancelRequested {
		return nil
	}
	now := time.Now()
	job.CancelRequested = true
	job.Stage = entity.StageCancelled
	job.FinishedAt = &now
	job.Progress = p.nextSnapshot(job, entity.StageCancelled, job.Progress.Percent, "cancelado por solicitud externa")
	job.UpdatedAt = now
	if err := p.store.Update(ctx, job); err != nil {
		return err
	}
	p.log.Info().Str("job_id", job.ID).Msg("job cancelado cooperativamente")
	return errCancelled
}

// advance transiciona de etapa y persiste el snapshot de avance (efecto
// observable para UI/monitoreo). Los snapshots de un job son estrictamente
// ordenados: Seq crece de a uno bajo el lease.
func (p *Pipeline) advance(ctx context.Context, job *entity.ProcessingJob, stage entity.Stage, message string) error {
	job.Stage = stage
	job.Progress = p.nextSnapshot(job, stage, stage.Percent(), message)
	job.UpdatedAt = job.Progress.At
	return p.store.Update(ctx, job)
}

func (p *Pipeline) nextSnapshot(job *entity.ProcessingJob, stage entity.Stage, percent int, message string) entity.ProgressSnapshot {
	return entity.ProgressSnapshot{
		Stage:   stage,
		Percent: percent,
		Message: message,
		At:      time.Now(),
		Seq:     job.Progress.Seq + 1,
	}
}

// checkpoint persiste el job con el resultado de la etapa recién completada.
func (p *Pipeline) checkpoint(ctx context.Context, job *entity.ProcessingJob) error {
	job.UpdatedAt = time.Now()
	return p.store.Update(ctx, job)
}

// failStage aplica la política de reintentos: incrementa attempts y decide
// entre re-encolar (fallo reintetable bajo presupuesto) o failed permanente.
func (p *Pipeline) failStage(ctx context.Context, job *entity.ProcessingJob, stageErr error) error {
	job.Attempts++
	job.LastError = stageErr.Error()

	if domain.IsRetryable(stageErr) && job.Attempts < job.MaxAttempts {
		job.Stage = entity.StageQueued
		job.Progress = p.nextSnapshot(job, entity.StageQueued, 0,
			fmt.Sprintf("fallo en etapa, reintento %d/%d: %v", job.Attempts, job.MaxAttempts, stageErr))
	} else {
		now := time.Now()
		job.Stage = entity.StageFailed
		job.FinishedAt = &now
		job.Progress = p.nextSnapshot(job, entity.StageFailed, job.Progress.Percent,
			fmt.Sprintf("job fallido: %v", stageErr))
	}
	job.UpdatedAt = time.Now()

	if err := p.store.Update(ctx, job); err != nil {
		return errors.Join(stageErr, err)
	}
	p.log.Warn().
		Str("job_id", job.ID).
		Int("attempt", job.Attempts).
		Str("stage", string(job.Stage)).
		Err(stageErr).
		Msg("fallo de etapa")
	return stageErr
}

// Retry re-encola un job en failed si quedan intentos; si el presupuesto se
// agotó la acción se rechaza con domain.ErrMaxAttempts.
func (p *Pipeline) Retry(ctx context.Context, jobID string) (*entity.ProcessingJob, error) {
	owner := uuid.New().String()
	if err := p.store.AcquireLease(ctx, jobID, owner, p.cfg.LeaseTTL); err != nil {
		return nil, err
	}
	defer func() { _ = p.store.ReleaseLease(context.WithoutCancel(ctx), jobID, owner) }()

	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Stage != entity.StageFailed {
		return nil, fmt.Errorf("%w: retry requiere estado failed, actual %s", domain.ErrInvalidTransition, job.Stage)
	}
	if job.Attempts >= job.MaxAttempts {
		return nil, domain.ErrMaxAttempts
	}

	job.Stage = entity.StageQueued
	job.FinishedAt = nil
	job.Progress = p.nextSnapshot(job, entity.StageQueued, 0, "reintento solicitado")
	job.UpdatedAt = time.Now()
	if err := p.store.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Cancel solicita la cancelación cooperativa del job.
func (p *Pipeline) Cancel(ctx context.Context, jobID string) error {
	return p.store.RequestCancel(ctx, jobID)
}

// Approve es la entrega al flujo de aprobación externo:
// ready_for_review → completed.
func (p *Pipeline) Approve(ctx context.Context, jobID string) (*entity.ProcessingJob, error) {
	owner := uuid.New().String()
	if err := p.store.AcquireLease(ctx, jobID, owner, p.cfg.LeaseTTL); err != nil {
		return nil, err
	}
	defer func() { _ = p.store.ReleaseLease(context.WithoutCancel(ctx), jobID, owner) }()

	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Stage != entity.StageReadyForReview {
		return nil, fmt.Errorf("%w: approve requiere ready_for_review, actual %s", domain.ErrInvalidTransition, job.Stage)
	}
	now := time.Now()
	job.Stage = entity.StageCompleted
	job.FinishedAt = &now
	job.Progress = p.nextSnapshot(job, entity.StageCompleted, entity.StageCompleted.Percent(), "liquidación aprobada")
	job.UpdatedAt = now
	if err := p.store.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// validateClassification es la obligación del caller sobre la respuesta del
// puerto: una respuesta inválida es fallo de etapa, nunca se acepta en
// silencio.
func validateClassification(cls *entity.Classification) error {
	if cls == nil {
		return fmt.Errorf("%w: respuesta nula", domain.ErrInvalidClassification)
	}
	if !entity.ValidExpenseKinds[cls.ExpenseKind] {
		return fmt.Errorf("%w: expense_kind %q", domain.ErrInvalidClassification, cls.ExpenseKind)
	}
	if cls.Confidence < 0 || cls.Confidence > 1 {
		return fmt.Errorf("%w: confianza %v fuera de [0,1]", domain.ErrInvalidClassification, cls.Confidence)
	}
	if strings.TrimSpace(cls.CityCode) == "" {
		return fmt.Errorf("%w: city_code vacío", domain.ErrInvalidClassification)
	}
	return nil
}

// validateExtraction valida la respuesta del puerto OCR (misma obligación).
func validateExtraction(facts *entity.ExtractionResult) error {
	if facts == nil {
		return fmt.Errorf("%w: extracción nula del OCR", domain.ErrInvalidClassification)
	}
	if strings.TrimSpace(facts.DocumentID) == "" {
		return fmt.Errorf("%w: extracción OCR sin document_id", domain.ErrInvalidClassification)
	}
	if facts.Confidence < 0 || facts.Confidence > 1 {
		return fmt.Errorf("%w: confianza OCR %v fuera de [0,1]", domain.ErrInvalidClassification, facts.Confidence)
	}
	return nil
}

func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf"
}
