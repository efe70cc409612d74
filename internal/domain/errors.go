package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")

	// ErrMalformedDocument: el documento no es XML/imagen procesable. Fatal para
	// ese documento; el job agota reintentos y queda en failed.
	ErrMalformedDocument = errors.New("documento no procesable")
	// ErrUnrecognizedDocument: la raíz XML no es Invoice, CreditNote ni DebitNote.
	ErrUnrecognizedDocument = errors.New("tipo de documento no reconocido")
	// ErrMissingField: falta un campo obligatorio; nunca se produce una
	// extracción parcial en su lugar.
	ErrMissingField = errors.New("campo obligatorio ausente")
	// ErrExternalService: fallo de un puerto externo (clasificación IA, OCR).
	ErrExternalService = errors.New("servicio externo no disponible")
	// ErrInvalidClassification: el puerto de clasificación devolvió un valor
	// que no pasa la validación del caller (expense_kind vacío, confianza
	// fuera de [0,1], city_code vacío).
	ErrInvalidClassification = errors.New("clasificación inválida")

	// ErrLeaseHeld: otro worker tiene el lease del job. El perdedor aborta de
	// inmediato sin efectos secundarios y no cuenta como intento.
	ErrLeaseHeld = errors.New("lease del job en poder de otro worker")
	// ErrJobTerminal: el job ya está en un estado terminal y no admite la acción.
	ErrJobTerminal = errors.New("el job está en estado terminal")
	// ErrMaxAttempts: se agotaron los reintentos; el retry explícito se rechaza.
	ErrMaxAttempts = errors.New("intentos máximos agotados")
	// ErrInvalidTransition: transición de estado no permitida por la máquina.
	ErrInvalidTransition = errors.New("transición de estado inválida")
)

// FieldError identifica el campo (ruta UBL) ausente o inválido.
// errors.Is(err, ErrMissingField) == true.
type FieldError struct {
	Path string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("campo obligatorio ausente: %s", e.Path)
}

func (e *FieldError) Unwrap() error { return ErrMissingField }

// NewFieldError construye el error tipado para un campo obligatorio ausente.
func NewFieldError(path string) error { return &FieldError{Path: path} }

// ExternalServiceError describe el fallo de un puerto externo y si amerita
// reintento. Retryable=false (ej. credenciales revocadas) hace que el
// pipeline falle rápido en lugar de agotar max_attempts.
type ExternalServiceError struct {
	Service   string // "classification", "ocr"
	Retryable bool
	Err       error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("servicio externo %s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return ErrExternalService }

// IsRetryable clasifica un error de etapa contra la política de reintentos:
// todo error reintenta salvo que un puerto externo lo marque como no
// reintentable (fail fast).
func IsRetryable(err error) bool {
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext.Retryable
	}
	return true
}
