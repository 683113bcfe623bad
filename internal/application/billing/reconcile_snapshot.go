package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/infrastructure/feed"
	"go.uber.org/zap"
)

// ReconcileSnapshotInvoice upserts one snapshot row. The snapshot is ground
// truth for open receivables: totals and balance overwrite stored state.
func (r *Reconciler) ReconcileSnapshotInvoice(ctx context.Context, rec feed.SnapshotInvoice, sourceFile string) RecordResult {
	canonical := r.canon.Normalize(rec.InvoiceNumberRaw)
	result := RecordResult{Record: rec.InvoiceNumberRaw, InvoiceNumber: canonical}

	err := r.execute(ctx, rec.InvoiceNumberRaw, func(repos TransactionalRepositories) error {
		result.Outcome, result.Linked = OutcomeUnchanged, false

		inv, err := r.findInvoice(ctx, repos.Invoices(), rec.InvoiceNumberRaw)
		if err != nil {
			return err
		}

		if inv == nil {
			inv, err = billing.NewInvoice(canonical, strings.TrimSpace(rec.InvoiceNumberRaw), rec.TotalAmount, billing.SyncSourceSnapshot)
			if err != nil {
				return err
			}
			applySnapshotDetails(inv, rec, sourceFile)
			inv.OverwriteFromSnapshot(rec.TotalAmount, rec.Balance)
			if err = r.linkInto(ctx, repos, inv, &result); err != nil {
				return err
			}
			if err := repos.Invoices().Create(ctx, inv); err != nil {
				return err
			}
			result.Outcome = OutcomeCreated
			return confirmIfPaid(ctx, repos, inv)
		}

		changed := snapshotDiffers(inv, rec)
		if changed {
			applySnapshotDetails(inv, rec, sourceFile)
			inv.OverwriteFromSnapshot(rec.TotalAmount, rec.Balance)
		}
		if err = r.linkInto(ctx, repos, inv, &result); err != nil {
			return err
		}
		if !changed && !result.Linked {
			return nil
		}
		if err := repos.Invoices().Update(ctx, inv); err != nil {
			return err
		}
		result.Outcome = OutcomeUpdated
		return confirmIfPaid(ctx, repos, inv)
	})
	if err != nil {
		return failed(rec.InvoiceNumberRaw, err)
	}
	return result
}

// snapshotDiffers reports whether applying rec would change inv
func snapshotDiffers(inv *billing.Invoice, rec feed.SnapshotInvoice) bool {
	if inv.SyncSource != billing.SyncSourceSnapshot || inv.SupersededAt != nil || inv.HasCreditNote || inv.IsLegacy {
		return true
	}
	if !inv.TotalAmount.Equal(rec.TotalAmount) || !inv.Balance().Equal(rec.Balance) {
		return true
	}
	if rec.ClientName != "" && rec.ClientName != inv.ClientName {
		return true
	}
	return false
}

func applySnapshotDetails(inv *billing.Invoice, rec feed.SnapshotInvoice, sourceFile string) {
	if rec.ClientTaxID != "" {
		inv.ClientTaxID = billing.CleanTaxID(rec.ClientTaxID)
	}
	if rec.ClientName != "" {
		inv.ClientName = rec.ClientName
	}
	if rec.IssueDate != nil {
		inv.IssueDate = rec.IssueDate
	}
	if rec.DueDate != nil {
		inv.DueDate = rec.DueDate
	}
	if inv.InvoiceNumberRaw == "" {
		inv.InvoiceNumberRaw = rec.InvoiceNumberRaw
	}
	inv.SourceFile = sourceFile
	inv.IsLegacy = false
}

// SupersedeAbsent marks snapshot-sourced open invoices that the latest
// snapshot no longer lists. Invoices from other feeds, and rows that failed
// to parse or reconcile in this run, are never touched.
func (r *Reconciler) SupersedeAbsent(ctx context.Context, seen, failedNumbers map[string]struct{}, at time.Time) (int, []RecordResult) {
	var open []*billing.Invoice
	err := r.execute(ctx, "supersede", func(repos TransactionalRepositories) error {
		var err error
		open, err = repos.Invoices().FindOpenBySource(ctx, billing.SyncSourceSnapshot)
		return err
	})
	if err != nil {
		return 0, []RecordResult{failed("supersede", fmt.Errorf("list open snapshot invoices: %w", err))}
	}

	var (
		count    int
		failures []RecordResult
	)
	for _, candidate := range open {
		if _, ok := seen[candidate.InvoiceNumber]; ok {
			continue
		}
		if _, ok := failedNumbers[candidate.InvoiceNumber]; ok {
			continue
		}
		id, number := candidate.ID, candidate.InvoiceNumber
		var done bool
		err := r.execute(ctx, number, func(repos TransactionalRepositories) error {
			done = false
			inv, err := repos.Invoices().FindByID(ctx, id)
			if err != nil {
				return err
			}
			if inv.SyncSource != billing.SyncSourceSnapshot || !inv.Status.IsOpen() || inv.SupersededAt != nil {
				return nil
			}
			if err := inv.Supersede(at); err != nil {
				return err
			}
			if err := repos.Invoices().Update(ctx, inv); err != nil {
				return err
			}
			done = true
			return nil
		})
		if err != nil {
			failures = append(failures, failed(number, err))
			continue
		}
		if !done {
			continue
		}
		count++
		r.logger.Info("Invoice absent from snapshot, superseded",
			zap.String("invoice_number", number), zap.Time("at", at))
	}
	return count, failures
}
