package entity

import "github.com/shopspring/decimal"

// TaxLine es el resultado de un impuesto o retención individual.
// Los montos se mantienen en precisión completa; el redondeo a 2 decimales
// ocurre únicamente en la frontera de presentación/exportación.
type TaxLine struct {
	Rate       decimal.Decimal `json:"rate"`
	BaseAmount decimal.Decimal `json:"base_amount"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	// ExemptAmount: porción exenta de la base (solo IVA en categorías exentas).
	ExemptAmount decimal.Decimal `json:"exempt_amount"`
	Rationale    string          `json:"rationale"`
}

// TaxComputationResult es la liquidación completa para un par
// (factura, clasificación). Nunca se muta; si cambian los insumos se
// reemplaza por una liquidación nueva.
//
// Invariante: NetAmount == Subtotal + TotalTaxes - TotalRetentions.
type TaxComputationResult struct {
	Subtotal decimal.Decimal `json:"subtotal"`

	IVA        TaxLine `json:"iva"`
	ReteIVA    TaxLine `json:"reteiva"`
	ReteFuente TaxLine `json:"retefuente"`
	ICA        TaxLine `json:"ica"`

	TotalTaxes      decimal.Decimal `json:"total_taxes"`
	TotalRetentions decimal.Decimal `json:"total_retentions"`
	NetAmount       decimal.Decimal `json:"net_amount"`

	// AppliedRules: identificadores de regla en orden de aplicación,
	// insumo para auditoría y exportación.
	AppliedRules []string `json:"applied_rules"`
	Warnings     []string `json:"warnings,omitempty"`
}
