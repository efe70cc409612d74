package tax

import (
	"strings"

	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
	"github.com/jhoicas/Recepcion-api/pkg/dian"
)

// AgentPredicate decide si el adquiriente califica como agente retenedor.
//
// La regla real depende del registro RUT/DIAN; lo que se implementa por
// defecto es una simplificación documentada y deliberadamente intercambiable:
// inyectar otro predicado al motor no toca ninguna regla de cálculo.
type AgentPredicate func(buyer entity.Party, cls *entity.Classification, table RateTable) bool

// DefaultAgentPredicate: heurística simplificada de agente retenedor.
//
//  1. Si el clasificador afirmó is_large_taxpayer, se respeta (true ⇒ agente).
//  2. NIT en el registro conocido de Grandes Contribuyentes ⇒ agente.
//  3. Responsabilidad fiscal del RUT O-13 / O-23 en el documento ⇒ agente.
//  4. NIT con prefijo de entidad estatal ⇒ agente.
//  5. NIT con 10 o más dígitos ⇒ agente (heurística de persona jurídica),
//     salvo que el clasificador haya negado explícitamente la calidad de
//     gran contribuyente.
func DefaultAgentPredicate(buyer entity.Party, cls *entity.Classification, table RateTable) bool {
	if cls != nil && cls.IsLargeTaxpayer != nil && *cls.IsLargeTaxpayer {
		return true
	}

	nit := dian.ExtractDigits(buyer.TaxID)
	if table.LargeTaxpayers[nit] {
		return true
	}
	if dian.LargeTaxpayerLevelCodes[strings.ToUpper(strings.TrimSpace(buyer.TaxLevelCode))] {
		return true
	}
	for _, prefix := range dian.GovernmentNITPrefixes {
		if strings.HasPrefix(nit, prefix) {
			return true
		}
	}
	if cls != nil && cls.IsLargeTaxpayer != nil && !*cls.IsLargeTaxpayer {
		return false
	}
	return len(nit) >= 10
}
