package tax_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
	"github.com/jhoicas/Recepcion-api/internal/domain/tax"
)

func currentTable(t *testing.T) tax.RateTable {
	t.Helper()
	table, _ := tax.DefaultTables().ForDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	return table
}

func TestDefaultAgentPredicate_ClasificadorAfirma(t *testing.T) {
	agente := true
	cls := &entity.Classification{IsLargeTaxpayer: &agente}
	buyer := entity.Party{TaxID: "123"} // NIT corto, solo cuenta la afirmación

	assert.True(t, tax.DefaultAgentPredicate(buyer, cls, currentTable(t)),
		"la afirmación del clasificador se respeta")
}

func TestDefaultAgentPredicate_ClasificadorNiega(t *testing.T) {
	noAgente := false
	cls := &entity.Classification{IsLargeTaxpayer: &noAgente}
	buyer := entity.Party{TaxID: "9012345678"} // 10 dígitos, normalmente agente

	assert.False(t, tax.DefaultAgentPredicate(buyer, cls, currentTable(t)),
		"la negación explícita prevalece sobre la heurística de longitud")
}

func TestDefaultAgentPredicate_RegistroGrandesContribuyentes(t *testing.T) {
	buyer := entity.Party{TaxID: "860.034.594-1"} // Bancolombia con puntuación

	assert.True(t, tax.DefaultAgentPredicate(buyer, nil, currentTable(t)),
		"el NIT se normaliza a dígitos y se busca en el registro")
}

func TestDefaultAgentPredicate_TaxLevelCode(t *testing.T) {
	buyer := entity.Party{TaxID: "12345678", TaxLevelCode: "O-13"}

	assert.True(t, tax.DefaultAgentPredicate(buyer, nil, currentTable(t)),
		"responsabilidad fiscal O-13 del RUT implica gran contribuyente")
}

func TestDefaultAgentPredicate_EntidadEstatal(t *testing.T) {
	buyer := entity.Party{TaxID: "899999034"} // prefijo 899999 de entidad estatal

	assert.True(t, tax.DefaultAgentPredicate(buyer, nil, currentTable(t)))
}

func TestDefaultAgentPredicate_HeuristicaLongitud(t *testing.T) {
	juridica := entity.Party{TaxID: "9001234568"} // 10 dígitos
	natural := entity.Party{TaxID: "12345678"}    // 8 dígitos

	assert.True(t, tax.DefaultAgentPredicate(juridica, nil, currentTable(t)),
		"NIT de 10+ dígitos: heurística de persona jurídica")
	assert.False(t, tax.DefaultAgentPredicate(natural, nil, currentTable(t)),
		"NIT corto sin otra señal: no es agente")
}
