package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
)

// ErrorResponse respuesta de error estándar de la API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobResponse vista resumida del job para la API (sin el documento crudo).
type JobResponse struct {
	ID          string     `json:"id"`
	Stage       string     `json:"stage"`
	Percent     int        `json:"percent"`
	Message     string     `json:"message"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ToJobResponse proyecta el job al resumen de API.
func ToJobResponse(job *entity.ProcessingJob) JobResponse {
	return JobResponse{
		ID:          job.ID,
		Stage:       string(job.Stage),
		Percent:     job.Progress.Percent,
		Message:     job.Progress.Message,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		LastError:   job.LastError,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		FinishedAt:  job.FinishedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

// TaxLineView línea de liquidación con montos redondeados a dos decimales.
// El redondeo ocurre SOLO aquí, en la frontera de presentación; internamente
// el motor conserva precisión completa.
type TaxLineView struct {
	Rate         string `json:"rate"`
	BaseAmount   string `json:"base_amount"`
	TaxAmount    string `json:"tax_amount"`
	ExemptAmount string `json:"exempt_amount,omitempty"`
	Rationale    string `json:"rationale"`
}

// TaxResultView liquidación completa para la API.
type TaxResultView struct {
	Subtotal        string      `json:"subtotal"`
	IVA             TaxLineView `json:"iva"`
	ReteIVA         TaxLineView `json:"reteiva"`
	ReteFuente      TaxLineView `json:"retefuente"`
	ICA             TaxLineView `json:"ica"`
	TotalTaxes      string      `json:"total_taxes"`
	TotalRetentions string      `json:"total_retentions"`
	NetAmount       string      `json:"net_amount"`
	AppliedRules    []string    `json:"applied_rules"`
	Warnings        []string    `json:"warnings,omitempty"`
}

// ResultResponse resultado completo del procesamiento: extracción,
// clasificación y liquidación (disponible desde ready_for_review).
type ResultResponse struct {
	JobID          string                   `json:"job_id"`
	Stage          string                   `json:"stage"`
	Extraction     *entity.ExtractionResult `json:"extraction,omitempty"`
	Classification *entity.Classification   `json:"classification,omitempty"`
	TaxResult      *TaxResultView           `json:"tax_result,omitempty"`
}

// ToResultResponse proyecta los checkpoints del job al resultado de API.
func ToResultResponse(job *entity.ProcessingJob) ResultResponse {
	resp := ResultResponse{
		JobID:          job.ID,
		Stage:          string(job.Stage),
		Extraction:     job.Extraction,
		Classification: job.Classification,
	}
	if job.TaxResult != nil {
		resp.TaxResult = toTaxResultView(job.TaxResult)
	}
	return resp
}

func toTaxResultView(r *entity.TaxComputationResult) *TaxResultView {
	return &TaxResultView{
		Subtotal:        money(r.Subtotal),
		IVA:             toTaxLineView(r.IVA),
		ReteIVA:         toTaxLineView(r.ReteIVA),
		ReteFuente:      toTaxLineView(r.ReteFuente),
		ICA:             toTaxLineView(r.ICA),
		TotalTaxes:      money(r.TotalTaxes),
		TotalRetentions: money(r.TotalRetentions),
		NetAmount:       money(r.NetAmount),
		AppliedRules:    r.AppliedRules,
		Warnings:        r.Warnings,
	}
}

func toTaxLineView(l entity.TaxLine) TaxLineView {
	view := TaxLineView{
		Rate:       l.Rate.StringFixed(4),
		BaseAmount: money(l.BaseAmount),
		TaxAmount:  money(l.TaxAmount),
		Rationale:  l.Rationale,
	}
	if l.ExemptAmount.IsPositive() {
		view.ExemptAmount = money(l.ExemptAmount)
	}
	return view
}

// money redondea a dos decimales para presentación.
func money(d decimal.Decimal) string {
	return d.Round(2).StringFixed(2)
}
