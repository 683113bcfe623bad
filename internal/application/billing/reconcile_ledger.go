package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/infrastructure/feed"
	"go.uber.org/zap"
)

// ReconcileLedgerPayment applies every allocation of a receipt. Each allocation
// runs in its own transaction, so one bad invoice does not void the others.
// Replaying the same receipt changes nothing.
func (r *Reconciler) ReconcileLedgerPayment(ctx context.Context, p feed.LedgerPayment, sourceFile string) []RecordResult {
	results := make([]RecordResult, 0, len(p.Allocations))
	for _, alloc := range p.Allocations {
		results = append(results, r.reconcileAllocation(ctx, p, alloc, sourceFile))
	}
	return results
}

func (r *Reconciler) reconcileAllocation(ctx context.Context, p feed.LedgerPayment, alloc feed.Allocation, sourceFile string) RecordResult {
	raw := strings.TrimSpace(alloc.InvoiceNumberRaw)
	canonical := r.canon.Normalize(raw)
	record := p.ReceiptNumber + "/" + raw
	result := RecordResult{Record: record, InvoiceNumber: canonical}

	err := r.execute(ctx, record, func(repos TransactionalRepositories) error {
		result.Outcome, result.Linked = OutcomeSkipped, false

		inv, err := r.findInvoice(ctx, repos.Invoices(), raw)
		if err != nil {
			return err
		}

		legacy := inv == nil
		if legacy {
			inv, err = billing.NewLegacyInvoice(canonical, raw, billing.CleanTaxID(p.ClientTaxID), p.ClientName, alloc.Amount)
			if err != nil {
				return err
			}
			inv.IssueDate = &p.Date
			inv.SourceFile = sourceFile
			if err := repos.Invoices().Create(ctx, inv); err != nil {
				return err
			}
			r.logger.Info("Created legacy invoice for unmatched payment",
				zap.String("receipt", p.ReceiptNumber),
				zap.String("invoice_number", canonical),
				zap.String("amount", alloc.Amount.String()))
		} else {
			exists, err := repos.Payments().Exists(ctx, p.ReceiptNumber, inv.ID)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
		}

		payment, err := billing.NewPayment(inv.ID, p.ReceiptNumber, alloc.Amount, p.Date,
			billing.PaymentTypeTransfer, billing.SyncSourceLedger)
		if err != nil {
			return err
		}
		payment.Concept = p.Concept
		if err := repos.Payments().Create(ctx, payment); err != nil {
			if errors.Is(err, billing.ErrIdempotencyConflict) && !legacy {
				return nil
			}
			return err
		}

		if err := inv.ApplyPaymentTotal(inv.PaidAmount.Add(payment.Amount)); err != nil {
			return err
		}
		if err = r.linkInto(ctx, repos, inv, &result); err != nil {
			return err
		}
		if err := repos.Invoices().Update(ctx, inv); err != nil {
			return err
		}
		if legacy {
			result.Outcome = OutcomeCreated
		} else {
			result.Outcome = OutcomeUpdated
		}

		if err := confirmIfPaid(ctx, repos, inv); err != nil {
			return err
		}
		if inv.IsLinked() {
			return repos.Documents().AppendPaymentEvent(ctx, billing.NewPaymentEvent(*inv.DocumentID, payment))
		}
		return nil
	})
	if err != nil {
		return failed(record, err)
	}
	return result
}

// ApplyCreditNote cancels the referenced invoice and annotates its document.
// A credit note for an unknown invoice is skipped.
func (r *Reconciler) ApplyCreditNote(ctx context.Context, note feed.CreditNoteRecord) RecordResult {
	raw := strings.TrimSpace(note.InvoiceNumberRaw)
	record := note.ReceiptNumber + "/" + raw
	result := RecordResult{Record: record, InvoiceNumber: r.canon.Normalize(raw)}

	err := r.execute(ctx, record, func(repos TransactionalRepositories) error {
		result.Outcome, result.Linked = OutcomeSkipped, false

		inv, err := r.findInvoice(ctx, repos.Invoices(), raw)
		if err != nil {
			return err
		}
		if inv == nil {
			r.logger.Warn("Credit note references unknown invoice",
				zap.String("receipt", note.ReceiptNumber),
				zap.String("invoice_number", raw))
			return nil
		}
		if inv.HasCreditNote && inv.Status == billing.InvoiceStatusCancelled {
			result.Outcome = OutcomeUnchanged
			return nil
		}

		previous := inv.ApplyCreditNote()
		if err := repos.Invoices().Update(ctx, inv); err != nil {
			return err
		}
		result.Outcome = OutcomeUpdated

		if !inv.IsLinked() {
			return nil
		}
		reason := note.Reason
		if reason == "" {
			reason = "Credit note " + note.ReceiptNumber
		}
		return repos.Documents().AnnotateCreditNote(ctx, *inv.DocumentID, billing.CreditNoteAnnotation{
			Reason:         reason,
			PreviousStatus: previous,
			Date:           note.Date,
		})
	})
	if err != nil {
		return failed(record, err)
	}
	return result
}
