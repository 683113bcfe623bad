package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies one of the three Koinor export formats
type Kind string

const (
	KindLedger   Kind = "LEDGER"
	KindMovement Kind = "MOVEMENT"
	KindSnapshot Kind = "SNAPSHOT"
)

// ParseKind maps a declared type (form field, CLI flag) to a Kind.
// Empty input returns "" so the caller can sniff the content.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "ledger", "estado_cuenta", "estado-cuenta", "pagos":
		return KindLedger, nil
	case "movement", "mov", "movimientos", "diario_caja":
		return KindMovement, nil
	case "snapshot", "cxc", "cartera":
		return KindSnapshot, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// DetectKind sniffs the kind from decoded text by its distinguishing tags
func DetectKind(text string) (Kind, bool) {
	switch {
	case snapshotRootPattern.MatchString(text):
		return KindSnapshot, true
	case strings.Contains(text, ledgerGroupTag):
		return KindLedger, true
	case strings.Contains(text, movementGroupTag):
		return KindMovement, true
	}
	return "", false
}

// Report describes one parse pass
type Report struct {
	FileName         string        `json:"file_name"`
	Encoding         string        `json:"encoding"`
	RowsSeen         int           `json:"rows_seen"`
	RecordsExtracted int           `json:"records_extracted"`
	Ignored          int           `json:"ignored"`
	Errors           []GroupError  `json:"errors,omitempty"`
	TotalErrors      int           `json:"total_errors"`
	Duration         time.Duration `json:"duration"`
}

func (r *Report) setErrors(ec *ErrorCollection) {
	r.Errors = ec.Errors()
	r.TotalErrors = ec.TotalCount()
}

// Batch is the parsed content of one feed file. The concrete type is one of
// *LedgerBatch, *MovementBatch or *SnapshotBatch.
type Batch interface {
	Kind() Kind
	Summary() *Report
	isBatch()
}

// Allocation is the share of a receipt applied to one invoice
type Allocation struct {
	InvoiceNumberRaw string
	Amount           decimal.Decimal
}

// LedgerPayment is one receipt with every invoice it pays
type LedgerPayment struct {
	ReceiptNumber string
	Date          time.Time
	ClientTaxID   string
	ClientName    string
	Concept       string
	Allocations   []Allocation
}

// Total returns the sum of all allocations
func (p LedgerPayment) Total() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}

// CreditNoteRecord is an NC transaction from the ledger
type CreditNoteRecord struct {
	ReceiptNumber    string
	InvoiceNumberRaw string
	Amount           decimal.Decimal
	Reason           string
	Date             time.Time
	ClientTaxID      string
	ClientName       string
}

// LedgerBatch holds payments grouped by receipt, in first-seen order
type LedgerBatch struct {
	Payments    []LedgerPayment
	CreditNotes []CreditNoteRecord
	Report      Report
}

func (b *LedgerBatch) Kind() Kind       { return KindLedger }
func (b *LedgerBatch) Summary() *Report { return &b.Report }
func (*LedgerBatch) isBatch()           {}

// PaymentCondition is the Movement conpag flag
type PaymentCondition string

const (
	ConditionCash   PaymentCondition = "E"
	ConditionCredit PaymentCondition = "C"
)

// MovementInvoice is a same-day invoice with a cash component
type MovementInvoice struct {
	Code             string
	InvoiceNumberRaw string
	ClientTaxID      string
	ClientName       string
	Seller           string
	IssueDate        *time.Time
	Condition        PaymentCondition
	TotalAmount      decimal.Decimal
	CashAmount       decimal.Decimal
	CheckAmount      decimal.Decimal
	CardAmount       decimal.Decimal
	DepositAmount    decimal.Decimal
}

// MovementBatch holds cash invoices from the daily cash journal
type MovementBatch struct {
	Invoices []MovementInvoice
	Report   Report
}

func (b *MovementBatch) Kind() Kind       { return KindMovement }
func (b *MovementBatch) Summary() *Report { return &b.Report }
func (*MovementBatch) isBatch()           {}

// SnapshotInvoice is one open receivable from the periodic cartera export
type SnapshotInvoice struct {
	InvoiceNumberRaw string
	ClientTaxID      string
	ClientName       string
	DocType          string
	TotalAmount      decimal.Decimal
	Balance          decimal.Decimal
	IssueDate        *time.Time
	DueDate          *time.Time
}

// SnapshotBatch holds every invoice present in the snapshot.
// FailedNumbers lists invoice numbers whose groups could not be parsed.
type SnapshotBatch struct {
	RootTag       string
	SnapshotDate  *time.Time
	Invoices      []SnapshotInvoice
	FailedNumbers []string
	Report        Report
}

func (b *SnapshotBatch) Kind() Kind       { return KindSnapshot }
func (b *SnapshotBatch) Summary() *Report { return &b.Report }
func (*SnapshotBatch) isBatch()           {}
