package feed

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	movementRootTag  = "d_vc_i_diario_caja"
	movementGroupTag = "d_vc_i_diario_caja_detallado_group1"

	movementInvoicePrefix = "FC"
)

// movement field names
const (
	movCode      = "encabezadofacturas_codapu"
	movCash      = "encabezadopuntosventa_valefe"
	movTotal     = "encabezadopuntosventa_totfac"
	movCheck     = "encabezadopuntosventa_valche"
	movCard      = "encabezadopuntosventa_valtar"
	movDeposit   = "encabezadofacturas_valdep"
	movCondition = "encabezadofacturas_conpag"
	movIssueDate = "encabezadopuntosventa_fecfac"
	movClient    = "encabezadofacturas_nomcxc"
	movTaxID     = "encabezadofacturas_codcxc"
	movClientID  = "clientes_codcli"
	movSeller    = "vendedorescob_nomven"
)

// ParseMovement reads the daily cash journal. Only invoices with a positive
// cash component are emitted; the rest are settled later by the ledger.
func (p *Parser) ParseMovement(decoded *Decoded, fileName string) (*MovementBatch, error) {
	start := time.Now()
	if !strings.Contains(decoded.Text, movementRootTag) {
		return nil, newStructuralError(fileName, "missing "+movementGroupTag, ErrUnknownKind)
	}

	batch := &MovementBatch{Report: newReport(fileName, decoded)}
	ec := NewErrorCollection(MovementErrorCap)

	v := newGroupVisitor(movementGroupTag, func(n int, f fields) {
		batch.Report.RowsSeen++
		inv, keep, ge := readMovementInvoice(n, f)
		switch {
		case ge != nil:
			ec.Add(*ge)
			p.logGroupError(fileName, *ge)
		case keep:
			batch.Invoices = append(batch.Invoices, inv)
		default:
			batch.Report.Ignored++
		}
	})

	scanErr := scan(decoded.Text, v)
	if err := p.finishScan(fileName, scanErr, v.count, ec); err != nil {
		return nil, err
	}

	batch.Report.RecordsExtracted = len(batch.Invoices)
	batch.Report.setErrors(ec)
	batch.Report.Duration = time.Since(start)
	return batch, nil
}

// readMovementInvoice returns keep=false for groups that are not invoices or
// carry no cash.
func readMovementInvoice(n int, f fields) (MovementInvoice, bool, *GroupError) {
	code := strings.ToUpper(f.get(movCode))
	if !strings.HasPrefix(code, movementInvoicePrefix) {
		return MovementInvoice{}, false, nil
	}

	cash, err := parseAmount(f.get(movCash))
	if err != nil {
		return MovementInvoice{}, false, amountError(n, movCash, f)
	}
	if !cash.IsPositive() {
		return MovementInvoice{}, false, nil
	}

	raw := strings.TrimSpace(code[len(movementInvoicePrefix):])
	if raw == "" {
		return MovementInvoice{}, false, requiredError(n, movCode, f)
	}

	inv := MovementInvoice{
		Code:             code,
		InvoiceNumberRaw: raw,
		ClientTaxID:      f.first(movTaxID, movClientID),
		ClientName:       f.get(movClient),
		Seller:           f.get(movSeller),
		Condition:        PaymentCondition(strings.ToUpper(f.get(movCondition))),
		CashAmount:       cash,
	}

	amounts := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{movTotal, &inv.TotalAmount},
		{movCheck, &inv.CheckAmount},
		{movCard, &inv.CardAmount},
		{movDeposit, &inv.DepositAmount},
	}
	for _, a := range amounts {
		v, err := parseAmount(f.get(a.field))
		if err != nil {
			return MovementInvoice{}, false, amountError(n, a.field, f)
		}
		*a.dst = v
	}
	if !inv.TotalAmount.IsPositive() {
		inv.TotalAmount = cash
	}

	issued, ge := optionalDate(n, movIssueDate, f)
	if ge != nil {
		return MovementInvoice{}, false, ge
	}
	inv.IssueDate = issued
	return inv, true, nil
}
