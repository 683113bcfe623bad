package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/infrastructure/feed"
	"github.com/shopspring/decimal"
)

// MovementReceiptPrefix marks the synthetic receipt of a same-day cash payment
const MovementReceiptPrefix = "MOV-"

// movementSettlement returns what a Movement group settled at the counter.
// A cash-condition sale settles the full total. Any other condition settles
// the sum of its tenders, typed by the first non-zero one.
func movementSettlement(rec feed.MovementInvoice) (decimal.Decimal, billing.PaymentType) {
	if rec.Condition == feed.ConditionCash {
		return rec.TotalAmount, billing.PaymentTypeCash
	}
	tenders := []struct {
		amount decimal.Decimal
		kind   billing.PaymentType
	}{
		{rec.CashAmount, billing.PaymentTypeCash},
		{rec.CheckAmount, billing.PaymentTypeCheck},
		{rec.CardAmount, billing.PaymentTypeCard},
		{rec.DepositAmount, billing.PaymentTypeTransfer},
	}
	sum := decimal.Zero
	kind := billing.PaymentTypeCash
	typed := false
	for _, t := range tenders {
		if !t.amount.IsPositive() {
			continue
		}
		sum = sum.Add(t.amount)
		if !typed {
			kind, typed = t.kind, true
		}
	}
	return sum, kind
}

// ReconcileMovementInvoice creates a same-day invoice if unseen and records
// its counter payment once. Only cash-condition sales are settled in full;
// credit sales keep the tendered amount and end PARTIAL when it falls short.
// An existing richer record is never downgraded.
func (r *Reconciler) ReconcileMovementInvoice(ctx context.Context, rec feed.MovementInvoice, sourceFile string) RecordResult {
	raw := strings.TrimSpace(rec.InvoiceNumberRaw)
	canonical := r.canon.Normalize(raw)
	result := RecordResult{Record: rec.Code, InvoiceNumber: canonical}

	paidAt := time.Now()
	if rec.IssueDate != nil {
		paidAt = *rec.IssueDate
	}
	amount, paymentType := movementSettlement(rec)

	err := r.execute(ctx, rec.Code, func(repos TransactionalRepositories) error {
		result.Outcome, result.Linked = OutcomeUnchanged, false

		inv, err := r.findInvoice(ctx, repos.Invoices(), raw)
		if err != nil {
			return err
		}

		created := inv == nil
		if created {
			inv, err = billing.NewInvoice(canonical, raw, rec.TotalAmount, billing.SyncSourceMovement)
			if err != nil {
				return err
			}
			inv.ClientTaxID = billing.CleanTaxID(rec.ClientTaxID)
			inv.ClientName = rec.ClientName
			inv.IssueDate = rec.IssueDate
			inv.SourceFile = sourceFile
			if err := repos.Invoices().Create(ctx, inv); err != nil {
				return err
			}
		}

		var payment *billing.Payment
		paidSoFar, err := repos.Payments().SumByInvoice(ctx, inv.ID)
		if err != nil {
			return err
		}
		if paidSoFar.IsZero() && amount.IsPositive() {
			payment, err = billing.NewPayment(inv.ID, MovementReceiptPrefix+raw, amount, paidAt,
				paymentType, billing.SyncSourceMovement)
			if err != nil {
				return err
			}
			payment.Concept = "Counter sale " + rec.Code
			if rec.Condition == feed.ConditionCash {
				payment.Concept = "Cash sale " + rec.Code
			}
			switch err := repos.Payments().Create(ctx, payment); {
			case errors.Is(err, billing.ErrIdempotencyConflict):
				payment = nil
			case err != nil:
				return err
			}
		}

		if payment != nil {
			target := payment.Amount
			if inv.PaidAmount.GreaterThan(target) {
				target = inv.PaidAmount
			}
			if err := inv.ApplyPaymentTotal(target); err != nil {
				return err
			}
		}

		if err = r.linkInto(ctx, repos, inv, &result); err != nil {
			return err
		}

		if !created && payment == nil && !result.Linked {
			return nil
		}
		if err := repos.Invoices().Update(ctx, inv); err != nil {
			return err
		}
		if created {
			result.Outcome = OutcomeCreated
		} else {
			result.Outcome = OutcomeUpdated
		}

		if err := confirmIfPaid(ctx, repos, inv); err != nil {
			return err
		}
		if payment != nil && inv.IsLinked() {
			return repos.Documents().AppendPaymentEvent(ctx, billing.NewPaymentEvent(*inv.DocumentID, payment))
		}
		return nil
	})
	if err != nil {
		return failed(rec.Code, err)
	}
	return result
}
