package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de documento soportados en recepción (raíz UBL).
const (
	DocumentKindInvoice    = "invoice"
	DocumentKindCreditNote = "credit_note"
	DocumentKindDebitNote  = "debit_note"
)

// Party identifica a una de las partes del documento (emisor o adquiriente).
// TaxID se normaliza a solo dígitos (NIT sin puntos ni guión).
type Party struct {
	TaxID        string `json:"tax_id"`
	Name         string `json:"name"`
	Address      string `json:"address,omitempty"`
	City         string `json:"city,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	TaxLevelCode string `json:"tax_level_code,omitempty"` // responsabilidad fiscal RUT (ej. O-13)
}

// LineItem es una línea del documento en el orden original.
type LineItem struct {
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountRate   decimal.Decimal `json:"discount_rate"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// MonetaryTotals son los totales monetarios del documento.
type MonetaryTotals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
}

// ExtractionResult es el resultado inmutable del parser (o del OCR) para un
// documento. Se crea una sola vez por documento; los mismos bytes producen
// siempre el mismo resultado.
//
// Confidence parte de 1.0 y baja con penalizaciones fijas por datos
// opcionales ausentes (piso 0). Es un puntaje consultivo, no una validación.
type ExtractionResult struct {
	DocumentID   string         `json:"document_id"`
	DocumentKind string         `json:"document_kind"`
	CUFE         string         `json:"cufe,omitempty"` // código fiscal único, opcional
	IssueDate    time.Time      `json:"issue_date"`
	DueDate      *time.Time     `json:"due_date,omitempty"`
	Supplier     Party          `json:"supplier"`
	Buyer        Party          `json:"buyer"`
	Totals       MonetaryTotals `json:"totals"`
	Lines        []LineItem     `json:"lines"`
	Confidence   float64        `json:"confidence"`
	Warnings     []string       `json:"warnings,omitempty"`
}
