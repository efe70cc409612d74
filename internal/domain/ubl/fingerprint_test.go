package ubl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Recepcion-api/internal/domain"
	"github.com/jhoicas/Recepcion-api/internal/domain/ubl"
)

func TestFingerprint_Determinista(t *testing.T) {
	fp1, err1 := ubl.Fingerprint([]byte(facturaCompleta))
	fp2, err2 := ubl.Fingerprint([]byte(facturaCompleta))

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, fp1, fp2, "los mismos bytes producen siempre la misma huella")
	assert.Len(t, fp1, 64, "la huella es SHA-256 en hexadecimal (64 caracteres)")
}

// TestFingerprint_IgnoraVariacionesDeSerializacion verifica que dos
// serializaciones equivalentes del mismo documento (espaciado de atributos,
// comillas) colapsan en la misma huella canónica.
func TestFingerprint_IgnoraVariacionesDeSerializacion(t *testing.T) {
	a := `<Invoice xmlns:cbc="urn:cbc"><cbc:ID  attr="x"  >FE-1</cbc:ID></Invoice>`
	b := `<Invoice xmlns:cbc="urn:cbc"><cbc:ID attr='x'>FE-1</cbc:ID></Invoice>`

	fpA, errA := ubl.Fingerprint([]byte(a))
	fpB, errB := ubl.Fingerprint([]byte(b))

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, fpA, fpB, "variaciones de serialización no deben cambiar la huella")
}

func TestFingerprint_DistingueContenido(t *testing.T) {
	a := `<Invoice><ID>FE-1</ID></Invoice>`
	b := `<Invoice><ID>FE-2</ID></Invoice>`

	fpA, _ := ubl.Fingerprint([]byte(a))
	fpB, _ := ubl.Fingerprint([]byte(b))

	assert.NotEqual(t, fpA, fpB, "contenido distinto debe producir huellas distintas")
}

func TestFingerprint_ErrorXMLRoto(t *testing.T) {
	_, err := ubl.Fingerprint([]byte("<Invoice><ID>FE-1"))
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
}
