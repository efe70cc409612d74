package entity

// Tipos de gasto reconocidos por el motor tributario.
const (
	ExpenseKindGoods            = "goods"
	ExpenseKindServices         = "services"
	ExpenseKindProfessionalFees = "professional_fees"
)

// ValidExpenseKinds conjunto de expense_kind aceptados del puerto de clasificación.
var ValidExpenseKinds = map[string]bool{
	ExpenseKindGoods:            true,
	ExpenseKindServices:         true,
	ExpenseKindProfessionalFees: true,
}

// Classification es la salida del puerto de clasificación (IA). El motor
// tributario la consume en modo solo lectura.
//
// IsLargeTaxpayer es nullable: nil significa que el clasificador no pudo
// determinar si el adquiriente es Gran Contribuyente y aplica la heurística
// del predicado de agente retenedor.
type Classification struct {
	ExpenseKind     string  `json:"expense_kind"`
	IsLargeTaxpayer *bool   `json:"is_large_taxpayer,omitempty"`
	CityCode        string  `json:"city_code"`
	ExpenseCategory string  `json:"expense_category"`
	Confidence      float64 `json:"confidence"`
	Rationale       string  `json:"rationale"`
}
