package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/Recepcion-api/internal/application/pipeline"
	"github.com/jhoicas/Recepcion-api/internal/domain"
	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
)

var _ pipeline.JobStore = (*JobStore)(nil)

// JobStore implementación PostgreSQL del almacén de jobs. Los checkpoints de
// etapa (extracción, clasificación, liquidación) van en columnas jsonb; el
// lease exclusivo se implementa con un UPDATE condicional, sin advisory locks.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore construye el adaptador con el pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

const jobColumns = `
	id, stage, attempts, max_attempts,
	document, mime_type, fingerprint,
	progress, last_error, cancel_requested,
	extraction, classification, tax_result,
	created_at, started_at, finished_at, updated_at`

// Create persiste un job recién recibido.
func (s *JobStore) Create(ctx context.Context, job *entity.ProcessingJob) error {
	progress, extraction, classification, taxResult, err := marshalJobDocs(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO processing_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err = s.pool.Exec(ctx, query,
		job.ID, string(job.Stage), job.Attempts, job.MaxAttempts,
		job.Document, job.MimeType, nullIfEmpty(job.Fingerprint),
		progress, nullIfEmpty(job.LastError), job.CancelRequested,
		extraction, classification, taxResult,
		job.CreatedAt, job.StartedAt, job.FinishedAt, job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ya existe un job para este documento", domain.ErrDuplicate)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get obtiene un job por ID. Devuelve domain.ErrNotFound si no existe.
func (s *JobStore) Get(ctx context.Context, id string) (*entity.ProcessingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE id = $1`
	return s.scanJob(s.pool.QueryRow(ctx, query, id))
}

// Update persiste el estado completo del job (etapa, progreso, checkpoints).
// Se asume que el llamador tiene el lease; el store no lo re-verifica aquí.
func (s *JobStore) Update(ctx context.Context, job *entity.ProcessingJob) error {
	progress, extraction, classification, taxResult, err := marshalJobDocs(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE processing_jobs
		SET stage            = $2,
		    attempts         = $3,
		    progress         = $4,
		    last_error       = $5,
		    cancel_requested = $6,
		    extraction       = $7,
		    classification   = $8,
		    tax_result       = $9,
		    started_at       = $10,
		    finished_at      = $11,
		    updated_at       = $12
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		job.ID, string(job.Stage), job.Attempts,
		progress, nullIfEmpty(job.LastError), job.CancelRequested,
		extraction, classification, taxResult,
		job.StartedAt, job.FinishedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, job.ID)
	}
	return nil
}

// ListQueued devuelve IDs de jobs encolados, los más antiguos primero.
func (s *JobStore) ListQueued(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT id FROM processing_jobs
		WHERE stage = $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, string(entity.StageQueued), limit)
	if err != nil {
		return nil, fmt.Errorf("list queued: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan queued id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindByFingerprint busca un job por la huella canónica del documento.
func (s *JobStore) FindByFingerprint(ctx context.Context, fingerprint string) (*entity.ProcessingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE fingerprint = $1`
	return s.scanJob(s.pool.QueryRow(ctx, query, fingerprint))
}

// AcquireLease toma el lease exclusivo del job con un UPDATE condicional:
// cero filas afectadas significa que otro worker lo tiene vigente.
func (s *JobStore) AcquireLease(ctx context.Context, jobID, owner string, ttl time.Duration) error {
	query := `
		UPDATE processing_jobs
		SET lease_owner   = $2,
		    lease_expires = now() + make_interval(secs => $3)
		WHERE id = $1
		  AND (lease_owner IS NULL OR lease_owner = $2 OR lease_expires < now())`
	tag, err := s.pool.Exec(ctx, query, jobID, owner, ttl.Seconds())
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguir "no existe" de "lease ajeno vigente".
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM processing_jobs WHERE id = $1)`, jobID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("verificar existencia del job: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
		}
		return domain.ErrLeaseHeld
	}
	return nil
}

// ReleaseLease libera el lease solo si sigue siendo del owner indicado; un
// lease ya expirado y re-adquirido por otro worker no se toca.
func (s *JobStore) ReleaseLease(ctx context.Context, jobID, owner string) error {
	query := `
		UPDATE processing_jobs
		SET lease_owner = NULL, lease_expires = NULL
		WHERE id = $1 AND lease_owner = $2`
	if _, err := s.pool.Exec(ctx, query, jobID, owner); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// RequestCancel marca la solicitud cooperativa en un solo statement atómico:
// si el job sigue en queued nadie lo está procesando y se cancela de inmediato;
// si está en vuelo, solo queda el flag y el pipeline lo honra entre etapas.
func (s *JobStore) RequestCancel(ctx context.Context, jobID string) error {
	query := `
		UPDATE processing_jobs
		SET cancel_requested = TRUE,
		    stage       = CASE WHEN stage = $2 THEN $3 ELSE stage END,
		    finished_at = CASE WHEN stage = $2 THEN now() ELSE finished_at END,
		    progress    = CASE WHEN stage = $2
		                       THEN jsonb_set(jsonb_set(progress, '{stage}', to_jsonb($3::text)),
		                                      '{message}', to_jsonb('cancelado antes de iniciar'::text))
		                       ELSE progress END,
		    updated_at  = now()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, jobID,
		string(entity.StageQueued), string(entity.StageCancelled))
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, jobID)
	}
	return nil
}

// ── Helpers de serialización ──────────────────────────────────────────────────

// marshalJobDocs serializa progreso y checkpoints a jsonb. Checkpoints nil se
// guardan como NULL, no como "null" literal.
func marshalJobDocs(job *entity.ProcessingJob) (progress []byte, extraction, classification, taxResult any, err error) {
	progress, err = json.Marshal(job.Progress)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("serializar progreso: %w", err)
	}
	if extraction, err = marshalNullable(job.Extraction); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("serializar extracción: %w", err)
	}
	if classification, err = marshalNullable(job.Classification); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("serializar clasificación: %w", err)
	}
	if taxResult, err = marshalNullable(job.TaxResult); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("serializar liquidación: %w", err)
	}
	return progress, extraction, classification, taxResult, nil
}

func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *JobStore) scanJob(row pgx.Row) (*entity.ProcessingJob, error) {
	var (
		job            entity.ProcessingJob
		stage          string
		fingerprint    *string
		lastError      *string
		progress       []byte
		extraction     []byte
		classification []byte
		taxResult      []byte
	)
	err := row.Scan(
		&job.ID, &stage, &job.Attempts, &job.MaxAttempts,
		&job.Document, &job.MimeType, &fingerprint,
		&progress, &lastError, &job.CancelRequested,
		&extraction, &classification, &taxResult,
		&job.CreatedAt, &job.StartedAt, &job.FinishedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Stage = entity.Stage(stage)
	if fingerprint != nil {
		job.Fingerprint = *fingerprint
	}
	if lastError != nil {
		job.LastError = *lastError
	}
	if err := json.Unmarshal(progress, &job.Progress); err != nil {
		return nil, fmt.Errorf("deserializar progreso: %w", err)
	}
	if err := unmarshalNullable(extraction, &job.Extraction); err != nil {
		return nil, fmt.Errorf("deserializar extracción: %w", err)
	}
	if err := unmarshalNullable(classification, &job.Classification); err != nil {
		return nil, fmt.Errorf("deserializar clasificación: %w", err)
	}
	if err := unmarshalNullable(taxResult, &job.TaxResult); err != nil {
		return nil, fmt.Errorf("deserializar liquidación: %w", err)
	}
	return &job, nil
}

func unmarshalNullable[T any](raw []byte, target **T) error {
	if len(raw) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*target = &v
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
