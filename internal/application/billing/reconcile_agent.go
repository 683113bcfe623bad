package billing

import (
	"context"
	"strings"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ReconcileAgentRecord upserts one invoice pushed by the sync agent. Stored
// state is replaced only when the record carries a newer Koinor modification.
func (r *Reconciler) ReconcileAgentRecord(ctx context.Context, rec AgentRecord) RecordResult {
	raw := strings.TrimSpace(rec.InvoiceNumber)
	canonical := r.canon.Normalize(raw)
	result := RecordResult{Record: raw, InvoiceNumber: canonical}

	if rec.TotalAmount == nil || rec.TotalAmount.IsNegative() {
		return failed(raw, shared.NewDomainError(billing.ErrCodeValidation, "total_factura must be a non-negative amount"))
	}
	paid := decimal.Zero
	if rec.PaidAmount != nil {
		paid = *rec.PaidAmount
	}
	modifiedAt := parseAgentTime(rec.LastModified)

	err := r.execute(ctx, raw, func(repos TransactionalRepositories) error {
		result.Outcome, result.Linked = OutcomeUnchanged, false

		inv, err := r.findInvoice(ctx, repos.Invoices(), raw)
		if err != nil {
			return err
		}

		created := inv == nil
		changed := false
		switch {
		case created:
			inv, err = billing.NewInvoice(canonical, raw, *rec.TotalAmount, billing.SyncSourceAgent)
			if err != nil {
				return err
			}
			inv.ClientTaxID = billing.CleanTaxID(rec.ClientTaxID)
			inv.ClientName = strings.TrimSpace(rec.ClientName)
			inv.IssueDate = parseAgentTime(rec.IssueDate)
			inv.DueDate = parseAgentTime(rec.DueDate)
			inv.ProtocolNumber = strings.TrimSpace(rec.ProtocolNumber)
			inv.OverwriteFromAgent(*rec.TotalAmount, paid, rec.Status(), modifiedAt)
		case inv.IsNewerModification(modifiedAt):
			if rec.PaidAmount == nil {
				paid = inv.PaidAmount
			}
			if p := strings.TrimSpace(rec.ProtocolNumber); p != "" {
				inv.ProtocolNumber = p
			}
			if due := parseAgentTime(rec.DueDate); due != nil {
				inv.DueDate = due
			}
			inv.OverwriteFromAgent(inv.TotalAmount, paid, rec.Status(), modifiedAt)
			changed = true
		}

		if err = r.linkInto(ctx, repos, inv, &result); err != nil {
			return err
		}

		switch {
		case created:
			if err := repos.Invoices().Create(ctx, inv); err != nil {
				return err
			}
			result.Outcome = OutcomeCreated
		case changed || result.Linked:
			if err := repos.Invoices().Update(ctx, inv); err != nil {
				return err
			}
			if changed {
				result.Outcome = OutcomeUpdated
			}
		default:
			return nil
		}
		return confirmIfPaid(ctx, repos, inv)
	})
	if err != nil {
		return failed(raw, err)
	}
	return result
}
