package feed

import (
	"strings"
	"time"
)

const (
	ledgerRootTag  = "d_vc_i_estado_cuenta"
	ledgerGroupTag = "d_vc_i_estado_cuenta_group1"
)

// Ledger transaction types (tipdoc)
const (
	ledgerTypePayment    = "AB"
	ledgerTypeCreditNote = "NC"
	ledgerTypeInvoice    = "FC"
)

// ledgerEntry is one AB group before grouping by receipt
type ledgerEntry struct {
	receipt    string
	date       time.Time
	taxID      string
	clientName string
	concept    string
	allocation Allocation
}

// ParseLedger reads the estado de cuenta export. Every group is one
// transaction; payments sharing a receipt number are merged afterwards.
func (p *Parser) ParseLedger(decoded *Decoded, fileName string) (*LedgerBatch, error) {
	start := time.Now()
	if !strings.Contains(decoded.Text, ledgerRootTag) {
		return nil, newStructuralError(fileName, "missing "+ledgerGroupTag, ErrUnknownKind)
	}

	batch := &LedgerBatch{Report: newReport(fileName, decoded)}
	ec := NewErrorCollection(LedgerErrorCap)
	entries := make([]ledgerEntry, 0, 256)

	reject := func(ge GroupError) {
		ec.Add(ge)
		p.logGroupError(fileName, ge)
	}

	v := newGroupVisitor(ledgerGroupTag, func(n int, f fields) {
		batch.Report.RowsSeen++
		switch strings.ToUpper(f.get("tipdoc")) {
		case ledgerTypePayment:
			if e, ge := readLedgerPayment(n, f); ge != nil {
				reject(*ge)
			} else {
				entries = append(entries, e)
			}
		case ledgerTypeCreditNote:
			if nc, ge := readCreditNote(n, f); ge != nil {
				reject(*ge)
			} else {
				batch.CreditNotes = append(batch.CreditNotes, nc)
			}
		default:
			// FC rows are already known from the other feeds
			batch.Report.Ignored++
		}
	})

	scanErr := scan(decoded.Text, v)
	if err := p.finishScan(fileName, scanErr, v.count, ec); err != nil {
		return nil, err
	}

	batch.Payments = groupByReceipt(entries)
	batch.Report.RecordsExtracted = len(batch.Payments) + len(batch.CreditNotes)
	batch.Report.setErrors(ec)
	batch.Report.Duration = time.Since(start)
	return batch, nil
}

func readLedgerPayment(n int, f fields) (ledgerEntry, *GroupError) {
	receipt := f.get("numdoc")
	if receipt == "" {
		return ledgerEntry{}, requiredError(n, "numdoc", f)
	}
	invoice := f.get("numtra")
	if invoice == "" {
		return ledgerEntry{}, requiredError(n, "numtra", f)
	}
	amount, err := parseAmount(f.get("valcob"))
	if err != nil || !amount.IsPositive() {
		return ledgerEntry{}, amountError(n, "valcob", f)
	}
	date, ge := requiredDate(n, "fecemi", f)
	if ge != nil {
		return ledgerEntry{}, ge
	}
	return ledgerEntry{
		receipt:    receipt,
		date:       date,
		taxID:      f.get("codcli"),
		clientName: f.get("nomcli"),
		concept:    f.get("concep"),
		allocation: Allocation{InvoiceNumberRaw: invoice, Amount: amount},
	}, nil
}

func readCreditNote(n int, f fields) (CreditNoteRecord, *GroupError) {
	receipt := f.get("numdoc")
	if receipt == "" {
		return CreditNoteRecord{}, requiredError(n, "numdoc", f)
	}
	invoice := f.get("numtra")
	if invoice == "" {
		return CreditNoteRecord{}, requiredError(n, "numtra", f)
	}
	amount, err := parseAmount(f.get("valcob"))
	if err != nil || amount.IsZero() {
		return CreditNoteRecord{}, amountError(n, "valcob", f)
	}
	date, ge := requiredDate(n, "fecemi", f)
	if ge != nil {
		return CreditNoteRecord{}, ge
	}
	return CreditNoteRecord{
		ReceiptNumber:    receipt,
		InvoiceNumberRaw: invoice,
		Amount:           amount.Abs(),
		Reason:           f.get("concep"),
		Date:             date,
		ClientTaxID:      f.get("codcli"),
		ClientName:       f.get("nomcli"),
	}, nil
}

// groupByReceipt merges entries sharing a receipt number into one payment
// with N allocations, keeping first-seen order of receipts and allocations.
func groupByReceipt(entries []ledgerEntry) []LedgerPayment {
	index := make(map[string]int, len(entries))
	out := make([]LedgerPayment, 0, len(entries))
	for _, e := range entries {
		if i, ok := index[e.receipt]; ok {
			out[i].Allocations = append(out[i].Allocations, e.allocation)
			continue
		}
		index[e.receipt] = len(out)
		out = append(out, LedgerPayment{
			ReceiptNumber: e.receipt,
			Date:          e.date,
			ClientTaxID:   e.taxID,
			ClientName:    e.clientName,
			Concept:       e.concept,
			Allocations:   []Allocation{e.allocation},
		})
	}
	return out
}

func requiredDate(n int, field string, f fields) (time.Time, *GroupError) {
	d, err := parseDate(f.get(field))
	if err != nil {
		return time.Time{}, dateError(n, field, f)
	}
	if d == nil {
		return time.Time{}, requiredError(n, field, f)
	}
	return *d, nil
}

func optionalDate(n int, field string, f fields) (*time.Time, *GroupError) {
	d, err := parseDate(f.get(field))
	if err != nil {
		return nil, dateError(n, field, f)
	}
	return d, nil
}
