package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Outcome is what one record did to the ledger
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// RecordResult reports the settlement of a single record
type RecordResult struct {
	Record        string
	InvoiceNumber string
	Outcome       Outcome
	Linked        bool
	LinkTier      billing.LinkConfidence
	Err           error
}

func failed(record string, err error) RecordResult {
	return RecordResult{Record: record, Outcome: OutcomeFailed, Err: err}
}

const defaultConflictRetries = 3

// Reconciler applies per-source merge policies to the invoice ledger.
// Each record mutation runs in its own transaction.
type Reconciler struct {
	tx         TransactionScope
	canon      *billing.Canonicalizer
	linker     *Linker
	logger     *zap.Logger
	maxRetries int
}

// NewReconciler creates a Reconciler
func NewReconciler(tx TransactionScope, canon *billing.Canonicalizer, linker *Linker, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		tx:         tx,
		canon:      canon,
		linker:     linker,
		logger:     logger.Named("reconciler"),
		maxRetries: defaultConflictRetries,
	}
}

// execute runs fn in a transaction, retrying on optimistic-lock conflicts and
// on invoices created concurrently by another record of the same run.
// Errors that are not domain errors are reported as storage errors.
func (r *Reconciler) execute(ctx context.Context, record string, fn func(repos TransactionalRepositories) error) error {
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = r.tx.Execute(ctx, fn)
		if !errors.Is(err, shared.ErrConcurrencyConflict) && !errors.Is(err, shared.ErrAlreadyExists) {
			break
		}
		r.logger.Debug("Retrying after concurrent update",
			zap.String("record", record), zap.Int("attempt", attempt+1))
	}
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", billing.ErrStorage, err)
}

// findInvoice looks the number up under every spelling; nil when absent
func (r *Reconciler) findInvoice(ctx context.Context, repo billing.InvoiceRepository, number string) (*billing.Invoice, error) {
	inv, err := repo.FindByAnyNumber(ctx, r.canon.VariantsOf(number))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice %s: %w", number, err)
	}
	return inv, nil
}

// linkInto links inv and records the tier on result when a link was made
func (r *Reconciler) linkInto(ctx context.Context, repos TransactionalRepositories, inv *billing.Invoice, result *RecordResult) error {
	linked, err := r.link(ctx, repos, inv)
	if err != nil {
		return err
	}
	result.Linked = linked
	if linked {
		result.LinkTier = inv.LinkConfidence
	}
	return nil
}

// link associates inv with a document unless it already has one.
// Ambiguity leaves the invoice unlinked and is not an error.
func (r *Reconciler) link(ctx context.Context, repos TransactionalRepositories, inv *billing.Invoice) (bool, error) {
	if inv.IsLinked() || r.linker == nil {
		return false, nil
	}
	res, err := r.linker.Find(ctx, repos.Documents(), LinkRequest{
		ProtocolNumber: inv.ProtocolNumber,
		InvoiceNumber:  inv.InvoiceNumber,
		ClientName:     inv.ClientName,
	})
	if errors.Is(err, billing.ErrLinkingAmbiguity) {
		return false, nil
	}
	if err != nil || res == nil {
		return false, err
	}
	return inv.LinkDocument(res.DocumentID, res.Confidence), nil
}

// confirmIfPaid propagates PAID to the linked document
func confirmIfPaid(ctx context.Context, repos TransactionalRepositories, inv *billing.Invoice) error {
	if inv.Status != billing.InvoiceStatusPaid || !inv.IsLinked() {
		return nil
	}
	if err := repos.Documents().UpdatePaymentConfirmed(ctx, *inv.DocumentID); err != nil {
		return fmt.Errorf("confirm payment on document: %w", err)
	}
	return nil
}
