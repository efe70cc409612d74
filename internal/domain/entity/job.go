package entity

import "time"

// Stage es el estado del job de procesamiento. Enum cerrado: cualquier valor
// fuera de la lista es irrepresentable en la máquina de estados.
type Stage string

const (
	StageQueued         Stage = "queued"
	StageParsing        Stage = "parsing"
	StageClassifying    Stage = "classifying"
	StageTaxComputing   Stage = "tax_computing"
	StageReadyForReview Stage = "ready_for_review"
	StageCompleted      Stage = "completed"
	StageFailed         Stage = "failed"
	StageCancelled      Stage = "cancelled"
)

// Valid reporta si el valor pertenece al enum.
func (s Stage) Valid() bool {
	switch s {
	case StageQueued, StageParsing, StageClassifying, StageTaxComputing,
		StageReadyForReview, StageCompleted, StageFailed, StageCancelled:
		return true
	}
	return false
}

// Terminal reporta si el estado ya no admite transiciones del pipeline.
// ready_for_review es terminal para este núcleo: la aprobación externa es la
// única acción que lo mueve a completed.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageCancelled, StageReadyForReview:
		return true
	}
	return false
}

// Percent es el avance nominal al entrar a cada etapa.
func (s Stage) Percent() int {
	switch s {
	case StageQueued:
		return 0
	case StageParsing:
		return 10
	case StageClassifying:
		return 45
	case StageTaxComputing:
		return 75
	case StageReadyForReview:
		return 95
	case StageCompleted:
		return 100
	}
	return 0
}

// ProgressSnapshot es el avance observable del job (consumido por UI y
// monitoreo). Seq es monótono por job: un snapshot nunca pisa a uno más nuevo.
type ProgressSnapshot struct {
	Stage   Stage     `json:"stage"`
	Percent int       `json:"percent"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Seq     int       `json:"seq"`
}

// ProcessingJob es el registro del pipeline. Lo muta exclusivamente el
// pipeline (bajo lease); los demás componentes solo lo leen.
type ProcessingJob struct {
	ID          string `json:"id"`
	Stage       Stage  `json:"stage"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`

	// Documento crudo recibido (XML UBL o imagen para OCR).
	Document    []byte `json:"-"`
	MimeType    string `json:"mime_type"`
	Fingerprint string `json:"fingerprint,omitempty"` // SHA-256 del XML canonicalizado

	Progress  ProgressSnapshot `json:"progress"`
	LastError string           `json:"last_error,omitempty"`

	// Flag cooperativo: el pipeline lo consulta antes de cada etapa.
	CancelRequested bool `json:"cancel_requested,omitempty"`

	// Checkpoints por etapa: una etapa completada no se re-ejecuta en un
	// reintento (evita llamadas externas redundantes).
	Extraction     *ExtractionResult     `json:"extraction,omitempty"`
	Classification *Classification       `json:"classification,omitempty"`
	TaxResult      *TaxComputationResult `json:"tax_result,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
