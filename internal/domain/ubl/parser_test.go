package ubl_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Recepcion-api/internal/domain"
	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
	"github.com/jhoicas/Recepcion-api/internal/domain/ubl"
)

// facturaCompleta es una factura UBL 2.1 con todos los campos opcionales
// presentes: CUFE, direcciones de ambas partes, líneas y totales no cero.
// Con ella el puntaje de confianza debe ser exactamente 1.0.
const facturaCompleta = `<?xml version="1.0" encoding="UTF-8"?>
<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
         xmlns:cac="urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
         xmlns:cbc="urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2">
  <cbc:ID>FE-1001</cbc:ID>
  <cbc:UUID>e47ac10b58cc4372a5670e02b2c3d479cufe</cbc:UUID>
  <cbc:IssueDate>2024-03-15</cbc:IssueDate>
  <cbc:DueDate>2024-04-15</cbc:DueDate>
  <cbc:DocumentCurrencyCode>COP</cbc:DocumentCurrencyCode>
  <cac:AccountingSupplierParty>
    <cac:Party>
      <cac:PartyName><cbc:Name>Servicios Andinos</cbc:Name></cac:PartyName>
      <cac:PhysicalLocation>
        <cac:Address>
          <cbc:CityName>Bogotá D.C.</cbc:CityName>
          <cbc:StreetName>Calle 26</cbc:StreetName>
          <cbc:BuildingNumber>92-32</cbc:BuildingNumber>
          <cbc:CitySubdivisionName>Fontibón</cbc:CitySubdivisionName>
        </cac:Address>
      </cac:PhysicalLocation>
      <cac:PartyTaxScheme>
        <cbc:CompanyID>900.123.456</cbc:CompanyID>
        <cbc:TaxLevelCode>R-99-PN</cbc:TaxLevelCode>
      </cac:PartyTaxScheme>
      <cac:PartyLegalEntity>
        <cbc:RegistrationName>Servicios Andinos SAS</cbc:RegistrationName>
      </cac:PartyLegalEntity>
      <cac:Contact>
        <cbc:Telephone>6015551234</cbc:Telephone>
        <cbc:ElectronicMail>facturacion@andinos.co</cbc:ElectronicMail>
      </cac:Contact>
    </cac:Party>
  </cac:AccountingSupplierParty>
  <cac:AccountingCustomerParty>
    <cac:Party>
      <cac:PhysicalLocation>
        <cac:Address>
          <cbc:CityName>Bogotá D.C.</cbc:CityName>
          <cbc:StreetName>Carrera 7</cbc:StreetName>
        </cac:Address>
      </cac:PhysicalLocation>
      <cac:PartyTaxScheme>
        <cbc:CompanyID>800987654</cbc:CompanyID>
        <cbc:TaxLevelCode>O-13</cbc:TaxLevelCode>
      </cac:PartyTaxScheme>
      <cac:PartyLegalEntity>
        <cbc:RegistrationName>Comercial del Centro SA</cbc:RegistrationName>
      </cac:PartyLegalEntity>
    </cac:Party>
  </cac:AccountingCustomerParty>
  <cac:LegalMonetaryTotal>
    <cbc:LineExtensionAmount currencyID="COP">1000000.00</cbc:LineExtensionAmount>
    <cbc:TaxExclusiveAmount currencyID="COP">190000.00</cbc:TaxExclusiveAmount>
    <cbc:AllowanceTotalAmount currencyID="COP">0.00</cbc:AllowanceTotalAmount>
    <cbc:PayableAmount currencyID="COP">1190000.00</cbc:PayableAmount>
  </cac:LegalMonetaryTotal>
  <cac:InvoiceLine>
    <cbc:ID>1</cbc:ID>
    <cbc:InvoicedQuantity unitCode="EA">10</cbc:InvoicedQuantity>
    <cbc:LineExtensionAmount currencyID="COP">1000000.00</cbc:LineExtensionAmount>
    <cac:TaxTotal>
      <cbc:TaxAmount currencyID="COP">190000.00</cbc:TaxAmount>
      <cac:TaxSubtotal>
        <cac:TaxCategory><cbc:Percent>19.00</cbc:Percent></cac:TaxCategory>
      </cac:TaxSubtotal>
    </cac:TaxTotal>
    <cac:Item><cbc:Description>Consultoría de software</cbc:Description></cac:Item>
    <cac:Price><cbc:PriceAmount currencyID="COP">100000.00</cbc:PriceAmount></cac:Price>
  </cac:InvoiceLine>
</Invoice>`

func TestParse_FacturaCompleta(t *testing.T) {
	result, err := ubl.Parse([]byte(facturaCompleta))
	require.NoError(t, err, "una factura válida no debe producir error")

	assert.Equal(t, "FE-1001", result.DocumentID)
	assert.Equal(t, entity.DocumentKindInvoice, result.DocumentKind)
	assert.Equal(t, "e47ac10b58cc4372a5670e02b2c3d479cufe", result.CUFE)
	assert.Equal(t, "2024-03-15", result.IssueDate.Format("2006-01-02"))
	require.NotNil(t, result.DueDate)
	assert.Equal(t, "2024-04-15", result.DueDate.Format("2006-01-02"))

	// El NIT se normaliza a solo dígitos
	assert.Equal(t, "900123456", result.Supplier.TaxID)
	assert.Equal(t, "Servicios Andinos SAS", result.Supplier.Name,
		"RegistrationName tiene prioridad sobre PartyName")
	assert.Equal(t, "Calle 26 No. 92-32 Fontibón", result.Supplier.Address)
	assert.Equal(t, "Bogotá D.C.", result.Supplier.City)
	assert.Equal(t, "6015551234", result.Supplier.Phone)
	assert.Equal(t, "facturacion@andinos.co", result.Supplier.Email)

	assert.Equal(t, "800987654", result.Buyer.TaxID)
	assert.Equal(t, "O-13", result.Buyer.TaxLevelCode,
		"el TaxLevelCode del adquiriente alimenta la detección de gran contribuyente")

	assert.True(t, result.Totals.Subtotal.Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, result.Totals.TaxAmount.Equal(decimal.NewFromInt(190_000)))
	assert.True(t, result.Totals.TotalAmount.Equal(decimal.NewFromInt(1_190_000)))
	assert.Equal(t, "COP", result.Totals.Currency)

	require.Len(t, result.Lines, 1)
	line := result.Lines[0]
	assert.Equal(t, "Consultoría de software", line.Description)
	assert.True(t, line.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, line.UnitPrice.Equal(decimal.NewFromInt(100_000)))
	assert.True(t, line.TaxRate.Equal(decimal.NewFromInt(19)))

	assert.Equal(t, 1.0, result.Confidence, "todos los opcionales presentes: confianza 1.0")
	assert.Empty(t, result.Warnings)
}

// TestParse_Determinista verifica que los mismos bytes producen resultados
// idénticos campo a campo (el parser no tiene estado ni I/O).
func TestParse_Determinista(t *testing.T) {
	r1, err1 := ubl.Parse([]byte(facturaCompleta))
	r2, err2 := ubl.Parse([]byte(facturaCompleta))

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, r1, r2, "el mismo documento siempre debe producir la misma extracción")
}

// ── Puntaje de confianza ──────────────────────────────────────────────────────

func TestParse_ConfianzaPenalizaSinCUFE(t *testing.T) {
	doc := strings.Replace(facturaCompleta,
		"<cbc:UUID>e47ac10b58cc4372a5670e02b2c3d479cufe</cbc:UUID>", "", 1)

	result, err := ubl.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, result.CUFE)
	assert.InDelta(t, 0.90, result.Confidence, 1e-9, "sin CUFE la confianza baja 0.10")
}

func TestParse_ConfianzaPenalizaSinLineas(t *testing.T) {
	start := strings.Index(facturaCompleta, "<cac:InvoiceLine>")
	end := strings.Index(facturaCompleta, "</cac:InvoiceLine>") + len("</cac:InvoiceLine>")
	doc := facturaCompleta[:start] + facturaCompleta[end:]

	result, err := ubl.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, result.Lines)
	assert.InDelta(t, 0.80, result.Confidence, 1e-9, "sin líneas la confianza baja 0.20")
}

func TestParse_ConfianzaNuncaNegativa(t *testing.T) {
	// Documento mínimo: sin CUFE, sin direcciones, sin líneas y total cero.
	doc := `<?xml version="1.0"?>
<Invoice xmlns:cbc="urn:cbc" xmlns:cac="urn:cac">
  <cbc:ID>FE-2</cbc:ID>
  <cbc:IssueDate>2024-01-10</cbc:IssueDate>
  <cac:AccountingSupplierParty><cac:Party>
    <cac:PartyTaxScheme><cbc:CompanyID>900123456</cbc:CompanyID></cac:PartyTaxScheme>
    <cac:PartyLegalEntity><cbc:RegistrationName>Emisor</cbc:RegistrationName></cac:PartyLegalEntity>
  </cac:Party></cac:AccountingSupplierParty>
  <cac:AccountingCustomerParty><cac:Party>
    <cac:PartyTaxScheme><cbc:CompanyID>800987654</cbc:CompanyID></cac:PartyTaxScheme>
    <cac:PartyLegalEntity><cbc:RegistrationName>Adquiriente</cbc:RegistrationName></cac:PartyLegalEntity>
  </cac:Party></cac:AccountingCustomerParty>
</Invoice>`

	result, err := ubl.Parse([]byte(doc))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.InDelta(t, 0.30, result.Confidence, 1e-9,
		"penalizaciones acumuladas: 0.10 CUFE + 0.05+0.05 direcciones + 0.20 líneas + 0.30 total cero")
}

// ── Campos obligatorios y errores tipados ─────────────────────────────────────

func TestParse_ErrorSinID(t *testing.T) {
	doc := strings.Replace(facturaCompleta, "<cbc:ID>FE-1001</cbc:ID>", "", 1)

	_, err := ubl.Parse([]byte(doc))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingField, "sin ID el error debe ser de campo faltante")

	var fieldErr *domain.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Contains(t, fieldErr.Path, "ID", "el error debe nombrar la ruta del campo ausente")
}

func TestParse_ErrorSinNITDelEmisor(t *testing.T) {
	doc := strings.Replace(facturaCompleta,
		"<cbc:CompanyID>900.123.456</cbc:CompanyID>", "", 1)

	_, err := ubl.Parse([]byte(doc))
	assert.ErrorIs(t, err, domain.ErrMissingField)
}

func TestParse_ErrorFechaInvalida(t *testing.T) {
	doc := strings.Replace(facturaCompleta,
		"<cbc:IssueDate>2024-03-15</cbc:IssueDate>",
		"<cbc:IssueDate>15/03/2024</cbc:IssueDate>", 1)

	_, err := ubl.Parse([]byte(doc))
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
}

func TestParse_ErrorXMLRoto(t *testing.T) {
	_, err := ubl.Parse([]byte("<Invoice><cbc:ID>FE-1"))
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
}

func TestParse_ErrorRaizDesconocida(t *testing.T) {
	_, err := ubl.Parse([]byte(`<Recibo><ID>1</ID></Recibo>`))
	assert.ErrorIs(t, err, domain.ErrUnrecognizedDocument)
}

func TestParse_ErrorMontoNoNumerico(t *testing.T) {
	doc := strings.Replace(facturaCompleta,
		`<cbc:PayableAmount currencyID="COP">1190000.00</cbc:PayableAmount>`,
		`<cbc:PayableAmount currencyID="COP">un millón</cbc:PayableAmount>`, 1)

	_, err := ubl.Parse([]byte(doc))
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
}

// ── Reglas de extracción ──────────────────────────────────────────────────────

// TestParse_CantidadPorDefectoSoloSiTagAusente distingue el tag ausente
// (cantidad 1) del tag presente con valor cero (cantidad 0).
func TestParse_CantidadPorDefectoSoloSiTagAusente(t *testing.T) {
	sinTag := strings.Replace(facturaCompleta,
		`<cbc:InvoicedQuantity unitCode="EA">10</cbc:InvoicedQuantity>`, "", 1)
	result, err := ubl.Parse([]byte(sinTag))
	require.NoError(t, err)
	assert.True(t, result.Lines[0].Quantity.Equal(decimal.NewFromInt(1)),
		"tag de cantidad ausente: se asume 1")

	enCero := strings.Replace(facturaCompleta,
		`<cbc:InvoicedQuantity unitCode="EA">10</cbc:InvoicedQuantity>`,
		`<cbc:InvoicedQuantity unitCode="EA">0</cbc:InvoicedQuantity>`, 1)
	result, err = ubl.Parse([]byte(enCero))
	require.NoError(t, err)
	assert.True(t, result.Lines[0].Quantity.IsZero(),
		"tag presente en cero: la cantidad es 0, no se sustituye por 1")
}

// TestParse_IVADerivadoSiTaxExclusiveAusente verifica la derivación
// total - subtotal + descuento cuando el monto de impuesto no viene.
func TestParse_IVADerivadoSiTaxExclusiveAusente(t *testing.T) {
	doc := strings.Replace(facturaCompleta,
		`<cbc:TaxExclusiveAmount currencyID="COP">190000.00</cbc:TaxExclusiveAmount>`, "", 1)

	result, err := ubl.Parse([]byte(doc))
	require.NoError(t, err)
	assert.True(t, result.Totals.TaxAmount.Equal(decimal.NewFromInt(190_000)),
		"IVA derivado: 1190000 - 1000000 + 0")
}

func TestParse_NotaCredito(t *testing.T) {
	doc := `<?xml version="1.0"?>
<CreditNote xmlns:cbc="urn:cbc" xmlns:cac="urn:cac">
  <cbc:ID>NC-55</cbc:ID>
  <cbc:IssueDate>2024-05-02</cbc:IssueDate>
  <cac:AccountingSupplierParty><cac:Party>
    <cac:PartyTaxScheme><cbc:CompanyID>900123456</cbc:CompanyID></cac:PartyTaxScheme>
    <cac:PartyLegalEntity><cbc:RegistrationName>Emisor</cbc:RegistrationName></cac:PartyLegalEntity>
  </cac:Party></cac:AccountingSupplierParty>
  <cac:AccountingCustomerParty><cac:Party>
    <cac:PartyTaxScheme><cbc:CompanyID>800987654</cbc:CompanyID></cac:PartyTaxScheme>
    <cac:PartyLegalEntity><cbc:RegistrationName>Adquiriente</cbc:RegistrationName></cac:PartyLegalEntity>
  </cac:Party></cac:AccountingCustomerParty>
  <cac:LegalMonetaryTotal>
    <cbc:LineExtensionAmount>50000.00</cbc:LineExtensionAmount>
    <cbc:PayableAmount>59500.00</cbc:PayableAmount>
  </cac:LegalMonetaryTotal>
  <cac:CreditNoteLine>
    <cbc:CreditedQuantity>2</cbc:CreditedQuantity>
    <cbc:LineExtensionAmount>50000.00</cbc:LineExtensionAmount>
    <cac:Item><cbc:Description>Devolución parcial</cbc:Description></cac:Item>
    <cac:Price><cbc:PriceAmount>25000.00</cbc:PriceAmount></cac:Price>
  </cac:CreditNoteLine>
</CreditNote>`

	result, err := ubl.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentKindCreditNote, result.DocumentKind)
	require.Len(t, result.Lines, 1, "las líneas de nota crédito usan el tag CreditNoteLine")
	assert.True(t, result.Lines[0].Quantity.Equal(decimal.NewFromInt(2)))
}

// TestParse_AttachedDocument verifica que el sobre de entrega de la DIAN se
// desenvuelve y se parsea la factura embebida en el CDATA.
func TestParse_AttachedDocument(t *testing.T) {
	doc := `<?xml version="1.0"?>
<AttachedDocument xmlns:cbc="urn:cbc" xmlns:cac="urn:cac">
  <cbc:ID>AD-1</cbc:ID>
  <cac:Attachment>
    <cac:ExternalReference>
      <cbc:Description><![CDATA[` + facturaCompleta + `]]></cbc:Description>
    </cac:ExternalReference>
  </cac:Attachment>
</AttachedDocument>`

	result, err := ubl.Parse([]byte(doc))
	require.NoError(t, err, "el AttachedDocument debe desenvolverse a la factura embebida")
	assert.Equal(t, "FE-1001", result.DocumentID)
	assert.Equal(t, entity.DocumentKindInvoice, result.DocumentKind)
}

func TestParse_AttachedDocumentVacio(t *testing.T) {
	doc := `<?xml version="1.0"?>
<AttachedDocument xmlns:cbc="urn:cbc" xmlns:cac="urn:cac">
  <cbc:ID>AD-2</cbc:ID>
</AttachedDocument>`

	_, err := ubl.Parse([]byte(doc))
	assert.ErrorIs(t, err, domain.ErrMalformedDocument)
}

// TestParse_AdvertenciaDVInvalido verifica que un NIT de 10 dígitos con
// dígito de verificación errado genera advertencia sin invalidar el documento.
func TestParse_AdvertenciaDVInvalido(t *testing.T) {
	// 900123456 con DV incorrecto (0): el DV correcto de 900123456 es otro.
	doc := strings.Replace(facturaCompleta,
		"<cbc:CompanyID>900.123.456</cbc:CompanyID>",
		"<cbc:CompanyID>9001234560</cbc:CompanyID>", 1)

	result, err := ubl.Parse([]byte(doc))
	require.NoError(t, err, "un DV errado no invalida el documento")
	assert.NotEmpty(t, result.Warnings, "debe quedar advertencia del DV inválido")
}
