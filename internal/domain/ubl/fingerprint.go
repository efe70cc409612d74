package ubl

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"

	"github.com/ucarion/c14n"

	"github.com/jhoicas/Recepcion-api/internal/domain"
)

// Fingerprint calcula la huella SHA-256 del documento canonicalizado
// (C14N inclusivo). Dos serializaciones del mismo documento — espacios,
// orden de atributos, declaraciones de namespace redundantes — producen la
// misma huella, lo que la hace apta para recepción idempotente y detección
// de duplicados.
func Fingerprint(docBytes []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docBytes))
	dec.Entity = map[string]string{}
	canonical, err := c14n.Canonicalize(dec)
	if err != nil {
		return "", fmt.Errorf("%w: canonicalizar documento: %v", domain.ErrMalformedDocument, err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
