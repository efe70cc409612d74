package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jhoicas/Recepcion-api/internal/application/pipeline"
	"github.com/jhoicas/Recepcion-api/internal/domain"
	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
)

// Verificar en tiempo de compilación que AnthropicClassifier implementa el puerto.
var _ pipeline.Classifier = (*AnthropicClassifier)(nil)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion     = "2023-06-01"

	anthropicSystemPrompt = `Eres un experto tributario de la DIAN en Colombia especializado en clasificación de gastos de proveedor.
Dado el resumen de una factura recibida, devuelve ÚNICAMENTE un objeto JSON válido (sin markdown, sin bloques de código` + " ```json" + `) con esta estructura exacta:
{
  "expense_kind": "<goods | services | professional_fees>",
  "is_large_taxpayer": <true, false o null si no hay certeza sobre el adquiriente>,
  "city_code": "<código DANE del municipio del gasto, ej. 11001>",
  "expense_category": "<categoría: professional_services, education, health, basic_foods, medicines, agricultural, export, rent, general>",
  "confidence": <número decimal entre 0.0 y 1.0>,
  "rationale": "<explicación concisa en español, máximo 200 caracteres>"
}

Reglas:
- expense_kind: "professional_fees" solo para honorarios de profesiones liberales; servicios generales van en "services".
- city_code: si la factura no permite determinar el municipio, usa la ciudad por defecto indicada en el contexto.
- expense_category: usa "rent" para arrendamientos aunque el expense_kind sea services.
- confidence: 0.9–1.0 = certeza alta, 0.7–0.89 = probable, <0.7 = estimado.
- No incluyas texto fuera del JSON. Solo el objeto JSON.`
)

// AnthropicClassifier adaptador del puerto de clasificación usando la API
// REST de Anthropic (Claude). Usa net/http de la librería estándar; no
// requiere el SDK oficial.
type AnthropicClassifier struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewAnthropicClassifier construye el adaptador.
// model suele ser "claude-3-5-haiku-20241022".
// Si apiKey está vacío las llamadas devuelven error descriptivo en lugar de panic.
func NewAnthropicClassifier(apiKey, model string) *AnthropicClassifier {
	return &AnthropicClassifier{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			// Timeout de red de 25 s; el pipeline impone además su propio
			// context.WithTimeout por etapa.
			Timeout: 25 * time.Second,
		},
	}
}

// ── Estructuras internas del protocolo Anthropic Messages API ─────────────────

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// classificationPayload es el JSON que esperamos recibir del modelo.
type classificationPayload struct {
	ExpenseKind     string  `json:"expense_kind"`
	IsLargeTaxpayer *bool   `json:"is_large_taxpayer"`
	CityCode        string  `json:"city_code"`
	ExpenseCategory string  `json:"expense_category"`
	Confidence      float64 `json:"confidence"`
	Rationale       string  `json:"rationale"`
}

// jsonBlockRe extrae el primer objeto JSON del texto aunque el modelo lo
// envuelva en markdown. Captura desde el primer '{' hasta el último '}'.
var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// ── Implementación del puerto ─────────────────────────────────────────────────

// Classify envía el resumen de la factura a Claude y devuelve la
// clasificación del gasto. Los fallos salen como ExternalServiceError: un
// 401/403 de la API es no reintetable (credenciales), el resto sí.
func (s *AnthropicClassifier) Classify(ctx context.Context, facts *entity.ExtractionResult, hints pipeline.ClassificationHints) (*entity.Classification, error) {
	if s.apiKey == "" {
		return nil, &domain.ExternalServiceError{
			Service:   "classification",
			Retryable: false,
			Err:       fmt.Errorf("ANTHROPIC_API_KEY no configurado"),
		}
	}

	payload := anthropicRequest{
		Model:     s.model,
		MaxTokens: 1024,
		System:    anthropicSystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildInvoiceSummary(facts, hints)},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("AI: serializar request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("AI: crear HTTP request: %w", err)
	}
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ExternalServiceError{
			Service:   "classification",
			Retryable: true,
			Err:       fmt.Errorf("llamada HTTP fallida: %w", err),
		}
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, &domain.ExternalServiceError{
			Service:   "classification",
			Retryable: true,
			Err:       fmt.Errorf("leer respuesta: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		// 401/403: credenciales inválidas o revocadas — fallar rápido en
		// lugar de agotar reintentos.
		retryable := resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden
		var errResp anthropicResponse
		if jsonErr := json.Unmarshal(rawBody, &errResp); jsonErr == nil && errResp.Error != nil {
			return nil, &domain.ExternalServiceError{
				Service:   "classification",
				Retryable: retryable,
				Err:       fmt.Errorf("Anthropic error (%s): %s", errResp.Error.Type, errResp.Error.Message),
			}
		}
		return nil, &domain.ExternalServiceError{
			Service:   "classification",
			Retryable: retryable,
			Err:       fmt.Errorf("Anthropic HTTP %d: %s", resp.StatusCode, string(rawBody)),
		}
	}

	var anthResp anthropicResponse
	if err := json.Unmarshal(rawBody, &anthResp); err != nil {
		return nil, fmt.Errorf("AI: deserializar respuesta Anthropic: %w", err)
	}
	if len(anthResp.Content) == 0 {
		return nil, fmt.Errorf("AI: Claude devolvió respuesta vacía")
	}

	// Parseo seguro: extraer solo el bloque JSON aunque el modelo añada texto.
	cleanJSON := extractJSON(anthResp.Content[0].Text)
	if cleanJSON == "" {
		return nil, fmt.Errorf("AI: no se encontró JSON válido en la respuesta del modelo (respuesta: %s)", anthResp.Content[0].Text)
	}

	var cls classificationPayload
	if err := json.Unmarshal([]byte(cleanJSON), &cls); err != nil {
		return nil, fmt.Errorf("AI: parsear JSON de clasificación: %w (JSON extraído: %s)", err, cleanJSON)
	}

	cityCode := strings.TrimSpace(cls.CityCode)
	if cityCode == "" {
		cityCode = hints.DefaultCity
	}

	return &entity.Classification{
		ExpenseKind:     strings.ToLower(strings.TrimSpace(cls.ExpenseKind)),
		IsLargeTaxpayer: cls.IsLargeTaxpayer,
		CityCode:        cityCode,
		ExpenseCategory: strings.ToLower(strings.TrimSpace(cls.ExpenseCategory)),
		Confidence:      clamp01(cls.Confidence),
		Rationale:       cls.Rationale,
	}, nil
}

// buildInvoiceSummary arma el texto de usuario con los hechos financieros y
// los hints de contexto (sin mandar el XML completo al modelo).
func buildInvoiceSummary(facts *entity.ExtractionResult, hints pipeline.ClassificationHints) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Factura %s (%s) emitida el %s\n",
		facts.DocumentID, facts.DocumentKind, facts.IssueDate.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Emisor: %s (NIT %s)", facts.Supplier.Name, facts.Supplier.TaxID)
	if facts.Supplier.City != "" {
		fmt.Fprintf(&sb, ", ciudad %s", facts.Supplier.City)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Adquiriente: %s (NIT %s)", facts.Buyer.Name, facts.Buyer.TaxID)
	if facts.Buyer.TaxLevelCode != "" {
		fmt.Fprintf(&sb, ", responsabilidad fiscal %s", facts.Buyer.TaxLevelCode)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Subtotal %s %s, total %s\n",
		facts.Totals.Subtotal.StringFixed(2), facts.Totals.Currency, facts.Totals.TotalAmount.StringFixed(2))
	if len(facts.Lines) > 0 {
		sb.WriteString("Líneas:\n")
		for i, ln := range facts.Lines {
			if i >= 10 {
				fmt.Fprintf(&sb, "  … y %d líneas más\n", len(facts.Lines)-i)
				break
			}
			fmt.Fprintf(&sb, "  - %s (cantidad %s, total %s)\n",
				ln.Description, ln.Quantity, ln.LineTotal.StringFixed(2))
		}
	}
	fmt.Fprintf(&sb, "Contexto: régimen del adquiriente %q, ciudad por defecto %q\n",
		hints.TaxRegime, hints.DefaultCity)
	return sb.String()
}

// extractJSON extrae el primer objeto JSON bien formado de un texto libre.
// Estrategia en dos pasos:
//  1. Eliminar bloques de código markdown (```json … ``` o ``` … ```).
//  2. Usar regex para capturar el primer bloque { … }.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "```"); idx != -1 {
		after := text[idx+3:]
		if nl := strings.Index(after, "\n"); nl != -1 {
			after = after[nl+1:]
		}
		if close := strings.LastIndex(after, "```"); close != -1 {
			after = after[:close]
		}
		text = strings.TrimSpace(after)
	}

	if strings.HasPrefix(text, "{") {
		return text
	}

	match := jsonBlockRe.FindString(text)
	return strings.TrimSpace(match)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
