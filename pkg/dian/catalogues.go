// Package dian contiene catálogos y validaciones alineados al Anexo Técnico
// de Factura Electrónica de Venta DIAN (Colombia) v1.9, desde el lado de la
// recepción de documentos de proveedor.
package dian

// =============================================================================
// Tabla 17 - Tipos de Responsabilidad Fiscal (Anexo 1.9 - 13.2.7.1)
// Códigos que identifican las obligaciones tributarias del contribuyente en el RUT.
// En el anexo figuran como "0-XX"; en sistemas se usa también "O-XX" (letra O).
// =============================================================================

const (
	TaxLevelGranContribuyente  = "O-13"    // Gran contribuyente
	TaxLevelAutorretenedor     = "O-15"    // Autorretenedor
	TaxLevelAgenteRetencionIVA = "O-23"    // Agente de retención en el impuesto sobre las ventas
	TaxLevelRegimenSimple      = "O-47"    // Régimen Simple de Tributación – SIMPLE
	TaxLevelResponsableIVA     = "O-48"    // Responsable de IVA (Impuesto sobre las Ventas)
	TaxLevelNoResponsableIVA   = "O-49"    // No responsable de IVA
	TaxLevelNoAplicaOtros      = "R-99-PN" // No Aplica - Otros
)

// LargeTaxpayerLevelCodes: códigos de responsabilidad fiscal que implican
// calidad de agente retenedor (Gran Contribuyente o agente de ReteIVA).
var LargeTaxpayerLevelCodes = map[string]bool{
	TaxLevelGranContribuyente:  true,
	TaxLevelAgenteRetencionIVA: true,
	"0-13": true, "0-23": true, // formato con cero
}

// =============================================================================
// Tabla 11 - Tipos de Impuesto (Anexo 1.9 - 13.2.2)
// =============================================================================

const (
	TaxCodeIVA        = "01" // IVA
	TaxCodeINC        = "04" // Impuesto Nacional al Consumo
	TaxCodeReteIVA    = "05" // Retención sobre el IVA
	TaxCodeReteFuente = "06" // Retención en la fuente a título de renta
	TaxCodeReteICA    = "07" // Retención de ICA
)

// =============================================================================
// Tabla 3 - Tipos de identificación (Anexo 1.9 - 13.2.1)
// =============================================================================

const (
	IdentificationTypeNIT = "31" // NIT - requiere dígito de verificación
	IdentificationTypeCC  = "13" // Cédula de ciudadanía
)

// =============================================================================
// Raíces UBL aceptadas en recepción (documentos de proveedor)
// =============================================================================

const (
	UBLRootInvoice    = "Invoice"
	UBLRootCreditNote = "CreditNote"
	UBLRootDebitNote  = "DebitNote"
	// La DIAN entrega al adquiriente un AttachedDocument cuyo
	// cbc:Description (CDATA) contiene el Invoice real.
	UBLRootAttachedDocument = "AttachedDocument"
)

// GovernmentNITPrefixes: prefijos de NIT de entidades estatales (DIAN asigna
// el rango 899999xxx y 800.XXX para entidades públicas del orden nacional).
// Usado por la heurística de agente retenedor.
var GovernmentNITPrefixes = []string{"899999", "900999"}
