package tax

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Recepcion-api/internal/domain"
	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
)

// Identificadores de regla aplicada. Van en orden de evaluación al resultado
// y son el insumo de auditoría y exportación contable.
const (
	RuleIVAExempt   = "IVA_EXENTO"
	RuleIVAReduced  = "IVA_TARIFA_REDUCIDA_5"
	RuleIVAZeroRate = "IVA_TARIFA_CERO_EXPORTACION"
	RuleIVAStandard = "IVA_TARIFA_GENERAL_19"

	RuleReteIVAApplied = "RETEIVA_15"
	RuleReteIVASkipped = "RETEIVA_NO_APLICA"

	RuleReteFuenteServices     = "RETEFUENTE_SERVICIOS_4"
	RuleReteFuenteProfessional = "RETEFUENTE_HONORARIOS_11"
	RuleReteFuenteGoods        = "RETEFUENTE_COMPRAS_2_5"
	RuleReteFuenteRent         = "RETEFUENTE_ARRENDAMIENTO_3_5"
	RuleReteFuenteSkipped      = "RETEFUENTE_NO_APLICA"

	RuleICAApplied     = "ICA_MUNICIPAL"
	RuleICAUnknownCity = "ICA_CIUDAD_NO_MAPEADA"

	RuleTableFallback = "TABLA_SIN_VIGENCIA"
)

var thousand = decimal.NewFromInt(1000)

// Engine liquida impuestos y retenciones. Función pura sobre sus insumos:
// nunca falla por vacíos de configuración (eso degrada a advertencia), solo
// por forma inválida de la entrada.
type Engine struct {
	tables  TableSet
	isAgent AgentPredicate
}

// NewEngine construye el motor. predicate nil usa DefaultAgentPredicate.
func NewEngine(tables TableSet, predicate AgentPredicate) *Engine {
	if predicate == nil {
		predicate = DefaultAgentPredicate
	}
	return &Engine{tables: tables, isAgent: predicate}
}

// Calculate aplica las cuatro liquidaciones en orden estricto
// IVA → ReteIVA → ReteFuente → ICA (cada una puede depender de la anterior)
// y agrega totales.
//
// Política numérica: precisión completa en todo el cálculo; el redondeo
// ocurre solo en la frontera de presentación/exportación.
func (e *Engine) Calculate(facts *entity.ExtractionResult, cls *entity.Classification) (*entity.TaxComputationResult, error) {
	if facts == nil || cls == nil {
		return nil, fmt.Errorf("%w: se requieren extracción y clasificación", domain.ErrInvalidInput)
	}
	if facts.Totals.Subtotal.IsNegative() {
		return nil, fmt.Errorf("%w: subtotal negativo", domain.ErrInvalidInput)
	}

	result := &entity.TaxComputationResult{Subtotal: facts.Totals.Subtotal}

	table, inEffect := e.tables.ForDate(facts.IssueDate)
	if !inEffect {
		result.AppliedRules = append(result.AppliedRules, RuleTableFallback)
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"sin tabla tributaria vigente para %s; se aplica la más reciente",
			facts.IssueDate.Format("2006-01-02")))
	}

	subtotal := facts.Totals.Subtotal
	category := strings.ToLower(strings.TrimSpace(cls.ExpenseCategory))

	// 1. IVA
	result.IVA = e.computeIVA(subtotal, category, table, result)

	// 2. ReteIVA (depende del IVA y de la calidad de agente retenedor)
	agent := e.isAgent(facts.Buyer, cls, table)
	result.ReteIVA = e.computeReteIVA(result.IVA, agent, table, result)

	// 3. ReteFuente
	result.ReteFuente = e.computeReteFuente(subtotal, cls.ExpenseKind, category, agent, table, result)

	// 4. ICA
	result.ICA = e.computeICA(subtotal, cls, table, result)

	// Agregados. Invariante: net = subtotal + impuestos - retenciones.
	result.TotalTaxes = result.IVA.TaxAmount.Add(result.ICA.TaxAmount)
	result.TotalRetentions = result.ReteIVA.TaxAmount.Add(result.ReteFuente.TaxAmount)
	result.NetAmount = subtotal.Add(result.TotalTaxes).Sub(result.TotalRetentions)

	return result, nil
}

// computeIVA decide la tarifa por pertenencia de categoría, con prioridad
// exenta → reducida → tarifa cero exportación → general. La categoría exenta
// exime la base completa; la tarifa cero la conserva (distinción de auditoría).
func (e *Engine) computeIVA(subtotal decimal.Decimal, category string, table RateTable, out *entity.TaxComputationResult) entity.TaxLine {
	switch {
	case table.ExemptCategories[category]:
		out.AppliedRules = append(out.AppliedRules, RuleIVAExempt)
		return entity.TaxLine{
			Rate:         decimal.Zero,
			BaseAmount:   decimal.Zero,
			TaxAmount:    decimal.Zero,
			ExemptAmount: subtotal,
			Rationale:    fmt.Sprintf("categoría %q exenta de IVA; base excluida en su totalidad", category),
		}
	case table.ReducedCategories[category]:
		out.AppliedRules = append(out.AppliedRules, RuleIVAReduced)
		return entity.TaxLine{
			Rate:       table.IVAReduced,
			BaseAmount: subtotal,
			TaxAmount:  subtotal.Mul(table.IVAReduced),
			Rationale:  fmt.Sprintf("categoría %q con tarifa diferencial del 5%%", category),
		}
	case table.ExportCategories[category]:
		out.AppliedRules = append(out.AppliedRules, RuleIVAZeroRate)
		return entity.TaxLine{
			Rate:       decimal.Zero,
			BaseAmount: subtotal,
			TaxAmount:  decimal.Zero,
			Rationale:  "operación de exportación con tarifa cero (no exenta)",
		}
	default:
		out.AppliedRules = append(out.AppliedRules, RuleIVAStandard)
		return entity.TaxLine{
			Rate:       table.IVAStandard,
			BaseAmount: subtotal,
			TaxAmount:  subtotal.Mul(table.IVAStandard),
			Rationale:  "tarifa general de IVA del 19%",
		}
	}
}

// computeReteIVA aplica solo si hubo IVA y el adquiriente es agente
// retenedor; la base es el IVA liquidado, no el subtotal.
func (e *Engine) computeReteIVA(iva entity.TaxLine, agent bool, table RateTable, out *entity.TaxComputationResult) entity.TaxLine {
	if !iva.TaxAmount.IsPositive() || !agent {
		out.AppliedRules = append(out.AppliedRules, RuleReteIVASkipped)
		reason := "sin IVA liquidado"
		if iva.TaxAmount.IsPositive() {
			reason = "el adquiriente no es agente retenedor"
		}
		return entity.TaxLine{Rationale: "ReteIVA no aplica: " + reason}
	}
	out.AppliedRules = append(out.AppliedRules, RuleReteIVAApplied)
	return entity.TaxLine{
		Rate:       table.ReteIVA,
		BaseAmount: iva.TaxAmount,
		TaxAmount:  iva.TaxAmount.Mul(table.ReteIVA),
		Rationale:  "retención del 15% sobre el IVA liquidado",
	}
}

// computeReteFuente selecciona la tarifa por tipo de gasto; la categoría
// "rent" prevalece sobre el tipo.
func (e *Engine) computeReteFuente(subtotal decimal.Decimal, expenseKind, category string, agent bool, table RateTable, out *entity.TaxComputationResult) entity.TaxLine {
	if !agent {
		out.AppliedRules = append(out.AppliedRules, RuleReteFuenteSkipped)
		return entity.TaxLine{Rationale: "ReteFuente no aplica: el adquiriente no es agente retenedor"}
	}

	var rate decimal.Decimal
	var rule, rationale string
	switch {
	case category == "rent":
		rate, rule = table.ReteFuenteRent, RuleReteFuenteRent
		rationale = "arrendamiento: retención en la fuente del 3.5%"
	case expenseKind == entity.ExpenseKindServices:
		rate, rule = table.ReteFuenteServices, RuleReteFuenteServices
		rationale = "servicios generales: retención en la fuente del 4%"
	case expenseKind == entity.ExpenseKindProfessionalFees:
		rate, rule = table.ReteFuenteProfessional, RuleReteFuenteProfessional
		rationale = "honorarios: retención en la fuente del 11%"
	default:
		rate, rule = table.ReteFuenteGoods, RuleReteFuenteGoods
		rationale = "compra de bienes: retención en la fuente del 2.5%"
	}
	out.AppliedRules = append(out.AppliedRules, rule)
	return entity.TaxLine{
		Rate:       rate,
		BaseAmount: subtotal,
		TaxAmount:  subtotal.Mul(rate),
		Rationale:  rationale,
	}
}

// computeICA busca la tarifa por mil en la tabla ciudad×actividad. Ciudad
// sin entrada no es fatal: componente en cero y advertencia con el código.
func (e *Engine) computeICA(subtotal decimal.Decimal, cls *entity.Classification, table RateTable, out *entity.TaxComputationResult) entity.TaxLine {
	activity := ActivityCommercial
	if cls.ExpenseKind == entity.ExpenseKindServices || cls.ExpenseKind == entity.ExpenseKindProfessionalFees {
		activity = ActivityServices
	}

	dane := table.ResolveCity(cls.CityCode)
	if dane == "" {
		out.AppliedRules = append(out.AppliedRules, RuleICAUnknownCity)
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"sin tarifa ICA para la ciudad %q; componente liquidado en cero", cls.CityCode))
		return entity.TaxLine{
			BaseAmount: subtotal,
			Rationale:  fmt.Sprintf("ICA en cero: ciudad %q sin entrada en la tabla municipal", cls.CityCode),
		}
	}

	rates := table.ICA[dane]
	permil := rates.Commercial
	if activity == ActivityServices {
		permil = rates.Services
	}

	out.AppliedRules = append(out.AppliedRules, RuleICAApplied)
	return entity.TaxLine{
		Rate:       permil.Div(thousand),
		BaseAmount: subtotal,
		TaxAmount:  subtotal.Mul(permil).Div(thousand),
		Rationale:  fmt.Sprintf("ICA municipio %s, actividad %s, tarifa %s por mil", dane, activity, permil),
	}
}
