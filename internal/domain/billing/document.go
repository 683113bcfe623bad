package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DocumentRef is the read model of a notarial case document as seen by billing
type DocumentRef struct {
	ID               uuid.UUID
	ProtocolNumber   string
	ClientName       string
	InvoiceNumber    string
	PaymentConfirmed bool
	// ArchivalText holds the electronic invoice XML attached to the document
	ArchivalText string
	CreatedAt    time.Time
}

// CreditNoteAnnotation is written onto a document when its invoice is cancelled
type CreditNoteAnnotation struct {
	Reason         string
	PreviousStatus InvoiceStatus
	Date           time.Time
}

// DocumentStore is the narrow port into the document workflow.
// Implementations must never change a document's workflow status.
type DocumentStore interface {
	// FindByProtocolNumber returns shared.ErrNotFound when no document carries the number
	FindByProtocolNumber(ctx context.Context, protocolNumber string) (*DocumentRef, error)
	FindByInvoiceNumberField(ctx context.Context, value string) ([]DocumentRef, error)
	FindByInvoiceNumberSuffix(ctx context.Context, suffix string, limit int) ([]DocumentRef, error)
	// FindCandidatesByClientNameFragment returns newest documents first
	FindCandidatesByClientNameFragment(ctx context.Context, fragment string, onlyUnlinked bool, limit int) ([]DocumentRef, error)
	// SetInvoiceNumber fills the invoice-number field only when it is empty
	SetInvoiceNumber(ctx context.Context, documentID uuid.UUID, number string) (bool, error)
	UpdatePaymentConfirmed(ctx context.Context, documentID uuid.UUID) error
	AnnotateCreditNote(ctx context.Context, documentID uuid.UUID, note CreditNoteAnnotation) error
	AppendPaymentEvent(ctx context.Context, event PaymentEvent) error
}
