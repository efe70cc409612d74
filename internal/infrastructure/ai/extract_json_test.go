package ai

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Recepcion-api/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	casos := []struct {
		nombre   string
		entrada  string
		esperado string
	}{
		{"json limpio", `{"a":1}`, `{"a":1}`},
		{"bloque markdown con etiqueta", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bloque markdown sin etiqueta", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"texto antes y después", `Claro, aquí está: {"a":1} espero que sirva`, `{"a":1}`},
		{"sin json", "no hay nada estructurado aquí", ""},
	}

	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			assert.Equal(t, c.esperado, extractJSON(c.entrada))
		})
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.7))
	assert.Equal(t, 0.85, clamp01(0.85))
}

// ── Conversión del payload de visión ──────────────────────────────────────────

func TestToExtractionResult_MontosComoDecimal(t *testing.T) {
	vp := &visionPayload{
		DocumentID:   "FE-9001",
		DocumentKind: "invoice",
		IssueDate:    "2024-03-15",
		Supplier:     visionParty{TaxID: "900123456", Name: "Emisor"},
		Buyer:        visionParty{TaxID: "800987654", Name: "Adquiriente"},
		Totals: visionTotals{
			Subtotal:    "1000000.00",
			TaxAmount:   "190000.00",
			TotalAmount: "1190000.00",
		},
		Lines: []visionLine{
			{Description: "Servicio", Quantity: "2", UnitPrice: "500000.00", LineTotal: "1000000.00"},
		},
		Confidence: 0.82,
	}

	result, err := toExtractionResult(vp)
	require.NoError(t, err)

	assert.True(t, result.Totals.Subtotal.Equal(decimal.NewFromInt(1_000_000)))
	assert.Equal(t, "COP", result.Totals.Currency, "moneda ausente: COP por defecto")
	require.Len(t, result.Lines, 1)
	assert.True(t, result.Lines[0].Quantity.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 0.82, result.Confidence)
}

// TestToExtractionResult_MontoIlegibleDegrada: un monto no numérico del OCR
// queda en cero con advertencia, no descarta toda la extracción.
func TestToExtractionResult_MontoIlegibleDegrada(t *testing.T) {
	vp := &visionPayload{
		DocumentID: "FE-9002",
		IssueDate:  "2024-03-15",
		Totals:     visionTotals{Subtotal: "~ilegible~", TotalAmount: "500.00"},
		Confidence: 0.4,
	}

	result, err := toExtractionResult(vp)
	require.NoError(t, err)
	assert.True(t, result.Totals.Subtotal.IsZero())
	assert.NotEmpty(t, result.Warnings, "el monto ilegible debe quedar registrado")
}

func TestToExtractionResult_ErrorFechaIlegible(t *testing.T) {
	vp := &visionPayload{DocumentID: "FE-9003", IssueDate: "marzo 15"}

	_, err := toExtractionResult(vp)
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
}

func TestToExtractionResult_TipoDesconocidoCaeAFactura(t *testing.T) {
	vp := &visionPayload{DocumentID: "FE-9004", DocumentKind: "recibo", IssueDate: "2024-01-01"}

	result, err := toExtractionResult(vp)
	require.NoError(t, err)
	assert.Equal(t, "invoice", result.DocumentKind)
}
