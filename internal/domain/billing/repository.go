package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceRepository defines persistence for the Invoice aggregate
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// FindByAnyNumber matches any of the spellings against both the canonical
	// and the raw number columns. Returns shared.ErrNotFound when nothing matches.
	FindByAnyNumber(ctx context.Context, spellings []string) (*Invoice, error)
	// FindOpenBySource lists non-superseded PENDING/PARTIAL invoices last written by source
	FindOpenBySource(ctx context.Context, source SyncSource) ([]*Invoice, error)
	// Create returns shared.ErrAlreadyExists on a duplicate invoice number
	Create(ctx context.Context, invoice *Invoice) error
	// Update compares and bumps Version; returns shared.ErrConcurrencyConflict on mismatch
	Update(ctx context.Context, invoice *Invoice) error
}

// PaymentRepository defines persistence for payments
type PaymentRepository interface {
	// Create returns ErrIdempotencyConflict when (receipt, invoice) already exists
	Create(ctx context.Context, payment *Payment) error
	Exists(ctx context.Context, receiptNumber string, invoiceID uuid.UUID) (bool, error)
	SumByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
}

// SyncLogRepository defines persistence for audit records
type SyncLogRepository interface {
	Save(ctx context.Context, log *SyncLog) error
	// FindLatest returns the newest log of any of the given types (all types when empty)
	FindLatest(ctx context.Context, types ...FileType) (*SyncLog, error)
	FindRecent(ctx context.Context, limit int) ([]*SyncLog, error)
}
