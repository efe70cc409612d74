package tax_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Recepcion-api/internal/domain/tax"
)

func TestForDate_TablaVigente(t *testing.T) {
	tables := tax.DefaultTables()

	table, ok := tables.ForDate(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, ok, "2024-06-01 cae dentro de la vigencia 2024")
	assert.Equal(t, "0.19", table.IVAStandard.String())
}

func TestForDate_FechaAnteriorAVigencias(t *testing.T) {
	tables := tax.DefaultTables()

	table, ok := tables.ForDate(time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok, "2019 es anterior a toda vigencia")
	assert.False(t, table.IVAStandard.IsZero(),
		"aun sin vigencia se devuelve la última tabla para degradar con advertencia")
}

func TestInEffect_RangoCerrado(t *testing.T) {
	table := tax.RateTable{
		EffectiveFrom: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EffectiveTo:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, table.InEffect(time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, table.InEffect(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)), "el límite inferior es inclusivo")
	assert.True(t, table.InEffect(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)), "el límite superior es inclusivo")
	assert.False(t, table.InEffect(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, table.InEffect(time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)))
}

// ── Resolución de ciudad ──────────────────────────────────────────────────────

func TestResolveCity(t *testing.T) {
	tables := tax.DefaultTables()
	table, _ := tables.ForDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	casos := []struct {
		entrada  string
		esperado string
	}{
		{"11001", "11001"},         // código DANE directo
		{"Bogotá", "11001"},        // nombre con tilde
		{"BOGOTA", "11001"},        // nombre sin tilde
		{"  medellín ", "05001"},   // espacios y minúsculas
		{"Cali", "76001"},
		{"Barranquilla", "08001"},
		{"99999", ""},              // código sin entrada
		{"Leticia", ""},            // ciudad sin tarifa
		{"", ""},
	}

	for _, c := range casos {
		assert.Equal(t, c.esperado, table.ResolveCity(c.entrada),
			"ResolveCity(%q)", c.entrada)
	}
}

func TestNormalizeCityKey(t *testing.T) {
	assert.Equal(t, "BOGOTA", tax.NormalizeCityKey("Bogotá"))
	assert.Equal(t, "MEDELLIN", tax.NormalizeCityKey("  medellín "))
	assert.Equal(t, "CALI", tax.NormalizeCityKey("cali"))
}

func TestDefaultTables_TarifasICABogota(t *testing.T) {
	tables := tax.DefaultTables()
	table, ok := tables.ForDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)

	rates, found := table.ICA["11001"]
	require.True(t, found, "Bogotá debe estar en la tabla ICA")
	assert.Equal(t, "9.66", rates.Services.String())
	assert.Equal(t, "11.04", rates.Commercial.String())
}
