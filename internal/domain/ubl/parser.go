package ubl

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Recepcion-api/internal/domain"
	"github.com/jhoicas/Recepcion-api/internal/domain/entity"
	"github.com/jhoicas/Recepcion-api/pkg/dian"
)

// Penalizaciones fijas del puntaje de confianza. El puntaje parte de 1.0,
// baja por datos opcionales ausentes y tiene piso en 0. Es consultivo: no
// invalida campos.
const (
	penaltyNoCUFE            = 0.10
	penaltyNoSupplierAddress = 0.05
	penaltyNoBuyerAddress    = 0.05
	penaltyNoLines           = 0.20
	penaltyZeroTotal         = 0.30
)

var docKindByRoot = map[string]string{
	dian.UBLRootInvoice:    entity.DocumentKindInvoice,
	dian.UBLRootCreditNote: entity.DocumentKindCreditNote,
	dian.UBLRootDebitNote:  entity.DocumentKindDebitNote,
}

// lineTag y quantityTag dependen de la raíz UBL.
var lineTagByRoot = map[string]string{
	dian.UBLRootInvoice:    "InvoiceLine",
	dian.UBLRootCreditNote: "CreditNoteLine",
	dian.UBLRootDebitNote:  "DebitNoteLine",
}

var quantityTagByRoot = map[string]string{
	dian.UBLRootInvoice:    "InvoicedQuantity",
	dian.UBLRootCreditNote: "CreditedQuantity",
	dian.UBLRootDebitNote:  "DebitedQuantity",
}

// Parse convierte los bytes de un documento electrónico UBL en un
// ExtractionResult. Es una función pura: los mismos bytes producen siempre
// el mismo resultado; no hay acceso a red ni a almacenamiento.
func Parse(docBytes []byte) (*entity.ExtractionResult, error) {
	root, err := parseRoot(docBytes)
	if err != nil {
		return nil, err
	}

	kind, ok := docKindByRoot[root.el.Tag]
	if !ok {
		return nil, fmt.Errorf("%w: raíz %q", domain.ErrUnrecognizedDocument, root.el.Tag)
	}

	// Campos obligatorios: sin ID o sin fecha no hay extracción parcial.
	docID, err := root.requiredText("ID")
	if err != nil {
		return nil, err
	}
	issueDateRaw, err := root.requiredText("IssueDate")
	if err != nil {
		return nil, err
	}
	issueDate, err := time.Parse("2006-01-02", issueDateRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: IssueDate %q no es una fecha AAAA-MM-DD", domain.ErrMalformedDocument, issueDateRaw)
	}

	result := &entity.ExtractionResult{
		DocumentID:   docID,
		DocumentKind: kind,
		CUFE:         root.text("UUID"),
		IssueDate:    issueDate,
	}

	if raw := root.text("DueDate"); raw != "" {
		if due, perr := time.Parse("2006-01-02", raw); perr == nil {
			result.DueDate = &due
		}
	}

	supplier, err := parseParty(root.at("AccountingSupplierParty", "Party"))
	if err != nil {
		return nil, err
	}
	buyer, err := parseParty(root.at("AccountingCustomerParty", "Party"))
	if err != nil {
		return nil, err
	}
	result.Supplier = supplier
	result.Buyer = buyer

	// El DV del NIT del emisor se verifica pero no bloquea: hay proveedores
	// que emiten con dígito errado y el documento sigue siendo soporte válido.
	if len(supplier.TaxID) >= 10 {
		if dvErr := dian.ValidateNITVerificationDigit(supplier.TaxID); dvErr != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("NIT del emisor con dígito de verificación inválido: %s", supplier.TaxID))
		}
	}

	totals, err := parseTotals(root)
	if err != nil {
		return nil, err
	}
	result.Totals = totals

	lines, err := parseLines(root)
	if err != nil {
		return nil, err
	}
	result.Lines = lines

	result.Confidence = scoreConfidence(result)
	return result, nil
}

// parseRoot lee el XML y desenvuelve un nivel de AttachedDocument si aplica:
// la DIAN entrega al adquiriente un AttachedDocument cuyo cbc:Description
// (CDATA) contiene el Invoice real.
func parseRoot(docBytes []byte) (node, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(docBytes); err != nil {
		return node{}, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
	}
	rootEl := doc.Root()
	if rootEl == nil {
		return node{}, fmt.Errorf("%w: documento sin elemento raíz", domain.ErrMalformedDocument)
	}
	root := wrap(rootEl)

	if rootEl.Tag == dian.UBLRootAttachedDocument {
		inner := root.text("Attachment", "ExternalReference", "Description")
		if strings.TrimSpace(inner) == "" {
			return node{}, fmt.Errorf("%w: AttachedDocument sin documento embebido", domain.ErrMalformedDocument)
		}
		innerDoc := etree.NewDocument()
		if err := innerDoc.ReadFromString(inner); err != nil {
			return node{}, fmt.Errorf("%w: documento embebido en AttachedDocument: %v", domain.ErrMalformedDocument, err)
		}
		if innerDoc.Root() == nil {
			return node{}, fmt.Errorf("%w: AttachedDocument con contenido vacío", domain.ErrMalformedDocument)
		}
		root = wrap(innerDoc.Root())
	}
	return root, nil
}

// parseParty extrae la parte (emisor o adquiriente). NIT y nombre son
// obligatorios; la dirección se ensambla desde sus subcampos y se omite por
// completo si todos están ausentes.
func parseParty(p node) (entity.Party, error) {
	var party entity.Party

	taxID := p.text("PartyTaxScheme", "CompanyID")
	if taxID == "" {
		taxID = p.text("PartyIdentification", "ID")
	}
	if dian.ExtractDigits(taxID) == "" {
		return party, domain.NewFieldError(p.path + "/PartyTaxScheme/CompanyID")
	}
	party.TaxID = dian.ExtractDigits(taxID)

	name := p.text("PartyLegalEntity", "RegistrationName")
	if name == "" {
		name = p.text("PartyName", "Name")
	}
	if name == "" {
		return party, domain.NewFieldError(p.path + "/PartyLegalEntity/RegistrationName")
	}
	party.Name = name

	addr := p.at("PhysicalLocation", "Address")
	if !addr.present() {
		addr = p.child("PostalAddress")
	}
	party.Address = assembleAddress(addr)
	party.City = addr.text("CityName")
	party.Phone = p.text("Contact", "Telephone")
	party.Email = p.text("Contact", "ElectronicMail")
	party.TaxLevelCode = p.text("PartyTaxScheme", "TaxLevelCode")

	return party, nil
}

// assembleAddress concatena, en orden: calle, calle secundaria, número de
// edificio (con prefijo) y barrio, unidos por espacios. Si no hay ninguna
// parte, la dirección se omite por completo.
func assembleAddress(addr node) string {
	var parts []string
	if v := addr.text("StreetName"); v != "" {
		parts = append(parts, v)
	}
	if v := addr.text("AdditionalStreetName"); v != "" {
		parts = append(parts, v)
	}
	if v := addr.text("BuildingNumber"); v != "" {
		parts = append(parts, "No. "+v)
	}
	if v := addr.text("CitySubdivisionName"); v != "" {
		parts = append(parts, v)
	}
	return strings.Join(parts, " ")
}

// parseTotals lee cac:LegalMonetaryTotal. El IVA se toma de
// TaxExclusiveAmount cuando viene y no es cero; si no, se deriva como
// total - subtotal + descuento.
func parseTotals(root node) (entity.MonetaryTotals, error) {
	var t entity.MonetaryTotals
	lmt := root.child("LegalMonetaryTotal")

	subtotal, err := lmt.amount("LineExtensionAmount")
	if err != nil {
		return t, err
	}
	discount, err := lmt.amount("AllowanceTotalAmount")
	if err != nil {
		return t, err
	}
	total, err := lmt.amount("PayableAmount")
	if err != nil {
		return t, err
	}
	taxAmount, err := lmt.amount("TaxExclusiveAmount")
	if err != nil {
		return t, err
	}
	if taxAmount.IsZero() {
		taxAmount = total.Sub(subtotal).Add(discount)
	}

	if subtotal.IsNegative() || total.IsNegative() {
		return t, fmt.Errorf("%w: totales negativos (subtotal=%s, total=%s)",
			domain.ErrMalformedDocument, subtotal, total)
	}

	currency := lmt.attr("currencyID", "PayableAmount")
	if currency == "" {
		currency = root.text("DocumentCurrencyCode")
	}
	if currency == "" {
		currency = "COP"
	}

	t.Subtotal = subtotal
	t.DiscountAmount = discount
	t.TotalAmount = total
	t.TaxAmount = taxAmount
	t.Currency = currency
	return t, nil
}

// parseLines extrae las líneas en orden de documento. La cantidad vale 1
// solo cuando el tag de cantidad está ausente por completo; los subcampos de
// impuesto y descuento valen 0 si no vienen.
func parseLines(root node) ([]entity.LineItem, error) {
	lineTag := lineTagByRoot[root.el.Tag]
	qtyTag := quantityTagByRoot[root.el.Tag]

	var lines []entity.LineItem
	for _, ln := range root.children(lineTag) {
		var item entity.LineItem
		item.Description = ln.text("Item", "Description")

		if !ln.has(qtyTag) {
			item.Quantity = decimal.NewFromInt(1)
		} else {
			qty, err := ln.amount(qtyTag)
			if err != nil {
				return nil, err
			}
			item.Quantity = qty
		}

		unitPrice, err := ln.amount("Price", "PriceAmount")
		if err != nil {
			return nil, err
		}
		item.UnitPrice = unitPrice

		lineTotal, err := ln.amount("LineExtensionAmount")
		if err != nil {
			return nil, err
		}
		if lineTotal.IsNegative() {
			return nil, fmt.Errorf("%w: línea con total negativo: %s", domain.ErrMalformedDocument, lineTotal)
		}
		item.LineTotal = lineTotal

		taxAmount, err := ln.amount("TaxTotal", "TaxAmount")
		if err != nil {
			return nil, err
		}
		item.TaxAmount = taxAmount
		taxRate, err := ln.amount("TaxTotal", "TaxSubtotal", "TaxCategory", "Percent")
		if err != nil {
			return nil, err
		}
		item.TaxRate = taxRate

		// AllowanceCharge con ChargeIndicator=false es descuento.
		for _, ac := range ln.children("AllowanceCharge") {
			if strings.EqualFold(ac.text("ChargeIndicator"), "true") {
				continue
			}
			amt, aerr := ac.amount("Amount")
			if aerr != nil {
				return nil, aerr
			}
			rate, aerr := ac.amount("MultiplierFactorNumeric")
			if aerr != nil {
				return nil, aerr
			}
			item.DiscountAmount = item.DiscountAmount.Add(amt)
			item.DiscountRate = rate
		}

		lines = append(lines, item)
	}
	return lines, nil
}

// scoreConfidence aplica las penalizaciones fijas sobre 1.0 con piso en 0.
func scoreConfidence(r *entity.ExtractionResult) float64 {
	score := 1.0
	if r.CUFE == "" {
		score -= penaltyNoCUFE
	}
	if r.Supplier.Address == "" {
		score -= penaltyNoSupplierAddress
	}
	if r.Buyer.Address == "" {
		score -= penaltyNoBuyerAddress
	}
	if len(r.Lines) == 0 {
		score -= penaltyNoLines
	}
	if r.Totals.TotalAmount.IsZero() {
		score -= penaltyZeroTotal
	}
	if score < 0 {
		score = 0
	}
	return score
}
