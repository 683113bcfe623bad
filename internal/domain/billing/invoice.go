package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the settlement status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPartial   InvoiceStatus = "PARTIAL"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	// InvoiceStatusOverdue is never stored; see Invoice.EffectiveStatus.
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

// IsValid checks if the status may be stored
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// IsOpen returns true while a balance is still expected
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusPartial
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// SyncSource identifies which feed last wrote an invoice
type SyncSource string

const (
	SyncSourceSnapshot SyncSource = "SNAPSHOT"
	SyncSourceMovement SyncSource = "MOVEMENT"
	SyncSourceLedger   SyncSource = "LEDGER"
	SyncSourceAgent    SyncSource = "AGENT"
)

// LinkConfidence grades how an invoice was associated with a document.
// Anything below LinkConfidenceExactNumber is a suggestion for human review.
type LinkConfidence string

const (
	LinkConfidenceNone           LinkConfidence = ""
	LinkConfidenceExactReference LinkConfidence = "EXACT_REFERENCE"
	LinkConfidenceExactNumber    LinkConfidence = "EXACT_NUMBER"
	LinkConfidenceSequence       LinkConfidence = "SEQUENCE"
	LinkConfidenceHeuristic      LinkConfidence = "HEURISTIC"
)

// NeedsReview reports whether a link at this tier should be confirmed by a person
func (c LinkConfidence) NeedsReview() bool {
	return c == LinkConfidenceSequence || c == LinkConfidenceHeuristic
}

const (
	// LegacyClientName is used for placeholder invoices created from payments
	LegacyClientName = "Cliente Legacy"
	// LegacyTaxID is the generic final-consumer id used when the payment has none
	LegacyTaxID = "9999999999999"
)

// Invoice is the aggregate root for a receivable exported by Koinor
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber    string          `json:"invoice_number"`
	InvoiceNumberRaw string          `json:"invoice_number_raw"`
	ClientTaxID      string          `json:"client_tax_id"`
	ClientName       string          `json:"client_name"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	Status           InvoiceStatus   `json:"status"`
	IssueDate        *time.Time      `json:"issue_date,omitempty"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	SourceFile       string          `json:"source_file,omitempty"`
	IsLegacy         bool            `json:"is_legacy"`
	HasCreditNote    bool            `json:"has_credit_note"`
	DocumentID       *uuid.UUID      `json:"document_id,omitempty"`
	LinkConfidence   LinkConfidence  `json:"link_confidence,omitempty"`
	ProtocolNumber   string          `json:"protocol_number,omitempty"`
	SyncSource       SyncSource      `json:"sync_source"`
	LastSyncAt       *time.Time      `json:"last_sync_at,omitempty"`
	KoinorModifiedAt *time.Time      `json:"koinor_modified_at,omitempty"`
	SupersededAt     *time.Time      `json:"superseded_at,omitempty"`
}

// NewInvoice creates a pending invoice
func NewInvoice(number, raw string, total decimal.Decimal, source SyncSource) (*Invoice, error) {
	if strings.TrimSpace(number) == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if total.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Invoice total cannot be negative")
	}
	now := time.Now()
	return &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     number,
		InvoiceNumberRaw:  raw,
		TotalAmount:       total,
		PaidAmount:        decimal.Zero,
		Status:            InvoiceStatusPending,
		SyncSource:        source,
		LastSyncAt:        &now,
	}, nil
}

// NewLegacyInvoice creates a placeholder for a payment whose invoice was never observed
func NewLegacyInvoice(number, raw, taxID, clientName string, amount decimal.Decimal) (*Invoice, error) {
	inv, err := NewInvoice(number, raw, amount, SyncSourceLedger)
	if err != nil {
		return nil, err
	}
	inv.IsLegacy = true
	inv.ClientTaxID = taxID
	if inv.ClientTaxID == "" {
		inv.ClientTaxID = LegacyTaxID
	}
	inv.ClientName = clientName
	if inv.ClientName == "" {
		inv.ClientName = LegacyClientName
	}
	return inv, nil
}

// StatusFor derives the stored status from amounts and the credit-note flag
func StatusFor(paid, total decimal.Decimal, creditNote bool) InvoiceStatus {
	switch {
	case creditNote:
		return InvoiceStatusCancelled
	case paid.GreaterThanOrEqual(total):
		return InvoiceStatusPaid
	case paid.IsPositive():
		return InvoiceStatusPartial
	default:
		return InvoiceStatusPending
	}
}

// Balance returns the outstanding amount, never negative
func (i *Invoice) Balance() decimal.Decimal {
	b := i.TotalAmount.Sub(i.PaidAmount)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// EffectiveStatus returns the status as presented to readers: PENDING past its
// due date reads as OVERDUE.
func (i *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.Status == InvoiceStatusPending && i.DueDate != nil && now.After(*i.DueDate) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// ApplyPaymentTotal sets PaidAmount to the sum of recorded payments and
// recomputes the status. A lower total is rejected: payments are append-only.
func (i *Invoice) ApplyPaymentTotal(paid decimal.Decimal) error {
	if paid.LessThan(i.PaidAmount) {
		return shared.NewDomainErrorf("PAID_AMOUNT_DECREASE",
			"Paid amount for %s cannot decrease from %s to %s", i.InvoiceNumber, i.PaidAmount, paid)
	}
	i.PaidAmount = paid
	i.Status = StatusFor(i.PaidAmount, i.TotalAmount, i.HasCreditNote)
	i.markSynced()
	return nil
}

// OverwriteFromSnapshot replaces monetary state with the snapshot's view.
// This is the explicit correction path: paid may go down.
func (i *Invoice) OverwriteFromSnapshot(total, balance decimal.Decimal) {
	i.TotalAmount = total
	paid := total.Sub(balance)
	if paid.IsNegative() {
		paid = decimal.Zero
	}
	i.PaidAmount = paid
	if balance.LessThanOrEqual(decimal.Zero) {
		i.Status = InvoiceStatusPaid
	} else {
		i.Status = StatusFor(paid, total, false)
	}
	i.HasCreditNote = false
	i.SupersededAt = nil
	i.SyncSource = SyncSourceSnapshot
	i.markSynced()
}

// OverwriteFromAgent applies the agent's authoritative state
func (i *Invoice) OverwriteFromAgent(total, paid decimal.Decimal, status InvoiceStatus, modifiedAt *time.Time) {
	i.TotalAmount = total
	i.PaidAmount = paid
	i.Status = status
	i.HasCreditNote = status == InvoiceStatusCancelled
	i.SyncSource = SyncSourceAgent
	i.KoinorModifiedAt = modifiedAt
	i.markSynced()
}

// IsNewerModification reports whether a record stamped modifiedAt should
// replace the stored state. Without a timestamp on either side it does.
func (i *Invoice) IsNewerModification(modifiedAt *time.Time) bool {
	if modifiedAt == nil || i.KoinorModifiedAt == nil {
		return true
	}
	return modifiedAt.After(*i.KoinorModifiedAt)
}

// ApplyCreditNote cancels the invoice. Monetary fields are left untouched.
// Returns the status held before the transition.
func (i *Invoice) ApplyCreditNote() InvoiceStatus {
	previous := i.Status
	i.HasCreditNote = true
	i.Status = InvoiceStatusCancelled
	i.markSynced()
	return previous
}

// LinkDocument associates the invoice with a document. An existing link is kept.
func (i *Invoice) LinkDocument(documentID uuid.UUID, confidence LinkConfidence) bool {
	if i.DocumentID != nil {
		return false
	}
	i.DocumentID = &documentID
	i.LinkConfidence = confidence
	i.Touch(time.Now())
	return true
}

// IsLinked reports whether the invoice is associated with a document
func (i *Invoice) IsLinked() bool {
	return i.DocumentID != nil
}

// Supersede marks a snapshot-sourced invoice as absent from the latest snapshot
func (i *Invoice) Supersede(at time.Time) error {
	if i.SyncSource != SyncSourceSnapshot {
		return shared.NewDomainErrorf("INVALID_STATE", "Invoice %s is not owned by the snapshot feed", i.InvoiceNumber)
	}
	if i.SupersededAt != nil {
		return nil
	}
	i.SupersededAt = &at
	i.Touch(at)
	return nil
}

func (i *Invoice) markSynced() {
	now := time.Now()
	i.LastSyncAt = &now
	i.Touch(now)
}
