package pipeline

import (
	"context"
	"time"

	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
)

// ClassificationHints es el contexto que acompaña la solicitud de
// clasificación (régimen del adquiriente y ciudad por defecto).
type ClassificationHints struct {
	TaxRegime   string
	DefaultCity string
}

// Classifier es el puerto de salida hacia la capacidad de clasificación IA.
// Cualquier adaptador (Anthropic, Gemini, mock) debe implementar esta
// interfaz; el pipeline solo conoce este contrato.
// El contexto debe llevar timeout: la llamada hace red y puede colgarse.
type Classifier interface {
	Classify(ctx context.Context, facts *entity.ExtractionResult, hints ClassificationHints) (*entity.Classification, error)
}

// VisionExtractor es el puerto de salida hacia el OCR de imágenes: convierte
// una imagen escaneada en el mismo ExtractionResult que produce el parser.
type VisionExtractor interface {
	Extract(ctx context.Context, imageBytes []byte, mimeType string) (*entity.ExtractionResult, error)
}

// JobStore es el puerto de persistencia de jobs. Es el único estado mutable
// compartido del núcleo: todas las mutaciones de job pasan por aquí y el
// lease exclusivo por job serializa a los workers.
type JobStore interface {
	Create(ctx context.Context, job *entity.ProcessingJob) error
	Get(ctx context.Context, id string) (*entity.ProcessingJob, error)
	Update(ctx context.Context, job *entity.ProcessingJob) error

	// ListQueued devuelve IDs de jobs en queued, los más antiguos primero.
	ListQueued(ctx context.Context, limit int) ([]string, error)

	// FindByFingerprint busca un job por huella del documento (recepción
	// idempotente). Devuelve domain.ErrNotFound si no existe.
	FindByFingerprint(ctx context.Context, fingerprint string) (*entity.ProcessingJob, error)

	// AcquireLease toma el lease exclusivo del job. Si otro worker lo tiene
	// vigente devuelve domain.ErrLeaseHeld sin efectos secundarios.
	AcquireLease(ctx context.Context, jobID, owner string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, jobID, owner string) error

	// RequestCancel marca la solicitud cooperativa de cancelación; si el job
	// sigue en queued lo cancela de inmediato (nadie lo está procesando).
	RequestCancel(ctx context.Context, jobID string) error
}
