package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Recepcion-api/internal/application/pipeline"
	"github.com/jhoicas/Recepcion-api/internal/domain"
	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
)

// Verificar en tiempo de compilación que GeminiVision implementa el puerto.
var _ pipeline.VisionExtractor = (*GeminiVision)(nil)

const geminiVisionPrompt = `Eres un sistema OCR experto en facturas electrónicas colombianas (DIAN).
Analiza la imagen de la factura y devuelve ÚNICAMENTE un objeto JSON válido con esta estructura:
{
  "document_id": "<número de la factura, ej. FE-12345>",
  "document_kind": "<invoice | credit_note | debit_note>",
  "cufe": "<CUFE si es visible, o cadena vacía>",
  "issue_date": "<fecha de emisión en formato YYYY-MM-DD>",
  "supplier": {"tax_id": "<NIT solo dígitos>", "name": "...", "address": "...", "city": "..."},
  "buyer": {"tax_id": "<NIT solo dígitos>", "name": "...", "address": "...", "city": "..."},
  "totals": {"subtotal": "0.00", "tax_amount": "0.00", "discount_amount": "0.00", "total_amount": "0.00", "currency": "COP"},
  "lines": [{"description": "...", "quantity": "1", "unit_price": "0.00", "line_total": "0.00"}],
  "confidence": <número decimal entre 0.0 y 1.0 según la legibilidad de la imagen>,
  "warnings": ["<campos ilegibles o dudosos>"]
}

Reglas:
- Los montos van como cadenas decimales sin separador de miles ("1500000.00").
- Si un campo no es legible, usa cadena vacía y agrégalo a warnings.
- confidence refleja la calidad global de la lectura, no inventes datos.`

// GeminiVision adaptador del puerto de OCR usando Gemini generateContent con
// entrada de imagen inline y salida JSON estructurada.
type GeminiVision struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGeminiVision construye el adaptador. model suele ser "gemini-2.0-flash".
func NewGeminiVision(apiKey, model string) *GeminiVision {
	return &GeminiVision{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 45 * time.Second, // imágenes grandes tardan más que texto
		},
	}
}

// ── Estructuras internas del protocolo Gemini ─────────────────────────────────

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiGenerationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	Temperature      float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// visionPayload es el JSON que esperamos recibir del modelo. Los montos
// llegan como cadenas para parsearlos con decimal sin pasar por float64.
type visionPayload struct {
	DocumentID   string             `json:"document_id"`
	DocumentKind string             `json:"document_kind"`
	CUFE         string             `json:"cufe"`
	IssueDate    string             `json:"issue_date"`
	Supplier     visionParty        `json:"supplier"`
	Buyer        visionParty        `json:"buyer"`
	Totals       visionTotals       `json:"totals"`
	Lines        []visionLine       `json:"lines"`
	Confidence   float64            `json:"confidence"`
	Warnings     []string           `json:"warnings"`
}

type visionParty struct {
	TaxID   string `json:"tax_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}

type visionTotals struct {
	Subtotal       string `json:"subtotal"`
	TaxAmount      string `json:"tax_amount"`
	DiscountAmount string `json:"discount_amount"`
	TotalAmount    string `json:"total_amount"`
	Currency       string `json:"currency"`
}

type visionLine struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

// ── Implementación del puerto ─────────────────────────────────────────────────

// Extract envía la imagen a Gemini y devuelve la extracción en el mismo
// formato que produce el parser XML determinista. Los fallos de red o de la
// API salen como ExternalServiceError (401/403 no reintentables).
func (s *GeminiVision) Extract(ctx context.Context, imageBytes []byte, mimeType string) (*entity.ExtractionResult, error) {
	if s.apiKey == "" {
		return nil, &domain.ExternalServiceError{
			Service:   "vision",
			Retryable: false,
			Err:       fmt.Errorf("GEMINI_API_KEY no configurado"),
		}
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: geminiVisionPrompt},
				{InlineData: &geminiInlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(imageBytes),
				}},
			},
		}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      0.1,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("AI: serializar request Gemini: %w", err)
	}

	url := fmt.Sprintf(
		"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		s.model, s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("AI: crear HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ExternalServiceError{
			Service:   "vision",
			Retryable: true,
			Err:       fmt.Errorf("llamada HTTP fallida: %w", err),
		}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return nil, &domain.ExternalServiceError{
			Service:   "vision",
			Retryable: true,
			Err:       fmt.Errorf("leer respuesta: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden
		var errResp geminiResponse
		if jsonErr := json.Unmarshal(rawBody, &errResp); jsonErr == nil && errResp.Error != nil {
			return nil, &domain.ExternalServiceError{
				Service:   "vision",
				Retryable: retryable,
				Err:       fmt.Errorf("Gemini error (%s): %s", errResp.Error.Status, errResp.Error.Message),
			}
		}
		return nil, &domain.ExternalServiceError{
			Service:   "vision",
			Retryable: retryable,
			Err:       fmt.Errorf("Gemini HTTP %d: %s", resp.StatusCode, string(rawBody)),
		}
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(rawBody, &gemResp); err != nil {
		return nil, fmt.Errorf("AI: deserializar respuesta Gemini: %w", err)
	}
	if len(gemResp.Candidates) == 0 || len(gemResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("AI: Gemini devolvió respuesta vacía")
	}

	cleanJSON := extractJSON(gemResp.Candidates[0].Content.Parts[0].Text)
	if cleanJSON == "" {
		return nil, fmt.Errorf("AI: no se encontró JSON válido en la respuesta de Gemini")
	}

	var vp visionPayload
	if err := json.Unmarshal([]byte(cleanJSON), &vp); err != nil {
		return nil, fmt.Errorf("AI: parsear JSON de visión: %w", err)
	}

	return toExtractionResult(&vp)
}

// toExtractionResult convierte el payload del modelo al tipo de dominio,
// validando fechas y montos. Montos ilegibles degradan a cero con warning en
// lugar de descartar toda la extracción.
func toExtractionResult(vp *visionPayload) (*entity.ExtractionResult, error) {
	issueDate, err := time.Parse("2006-01-02", vp.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("%w: fecha de emisión ilegible %q", domain.ErrMalformedDocument, vp.IssueDate)
	}

	result := &entity.ExtractionResult{
		DocumentID:   vp.DocumentID,
		DocumentKind: normalizeDocumentKind(vp.DocumentKind),
		CUFE:         vp.CUFE,
		IssueDate:    issueDate,
		Supplier: entity.Party{
			TaxID:   vp.Supplier.TaxID,
			Name:    vp.Supplier.Name,
			Address: vp.Supplier.Address,
			City:    vp.Supplier.City,
		},
		Buyer: entity.Party{
			TaxID:   vp.Buyer.TaxID,
			Name:    vp.Buyer.Name,
			Address: vp.Buyer.Address,
			City:    vp.Buyer.City,
		},
		Confidence: clamp01(vp.Confidence),
		Warnings:   vp.Warnings,
	}

	result.Totals = entity.MonetaryTotals{
		Subtotal:       parseAmountLenient("subtotal", vp.Totals.Subtotal, result),
		TaxAmount:      parseAmountLenient("tax_amount", vp.Totals.TaxAmount, result),
		DiscountAmount: parseAmountLenient("discount_amount", vp.Totals.DiscountAmount, result),
		TotalAmount:    parseAmountLenient("total_amount", vp.Totals.TotalAmount, result),
		Currency:       defaultCurrency(vp.Totals.Currency),
	}

	for i, ln := range vp.Lines {
		qty := parseAmountLenient(fmt.Sprintf("lines[%d].quantity", i), ln.Quantity, result)
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		result.Lines = append(result.Lines, entity.LineItem{
			Description: ln.Description,
			Quantity:    qty,
			UnitPrice:   parseAmountLenient(fmt.Sprintf("lines[%d].unit_price", i), ln.UnitPrice, result),
			LineTotal:   parseAmountLenient(fmt.Sprintf("lines[%d].line_total", i), ln.LineTotal, result),
		})
	}

	return result, nil
}

func normalizeDocumentKind(kind string) string {
	switch kind {
	case entity.DocumentKindInvoice, entity.DocumentKindCreditNote, entity.DocumentKindDebitNote:
		return kind
	default:
		return entity.DocumentKindInvoice
	}
}

func defaultCurrency(c string) string {
	if c == "" {
		return "COP"
	}
	return c
}

// parseAmountLenient parsea un monto del OCR; si no es numérico lo deja en
// cero y registra la advertencia (la imagen puede ser parcialmente ilegible).
func parseAmountLenient(field, raw string, out *entity.ExtractionResult) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("monto ilegible en %s: %q", field, raw))
		return decimal.Zero
	}
	return d
}
