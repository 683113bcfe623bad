package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvoice(t *testing.T) {
	t.Run("creates pending invoice", func(t *testing.T) {
		inv, err := NewInvoice("001-002-000123570", "001002-00123570", decimal.NewFromFloat(113), SyncSourceSnapshot)
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusPending, inv.Status)
		assert.True(t, inv.PaidAmount.IsZero())
		assert.Equal(t, 1, inv.Version)
		assert.NotNil(t, inv.LastSyncAt)
	})

	t.Run("rejects empty number", func(t *testing.T) {
		_, err := NewInvoice(" ", "", decimal.Zero, SyncSourceLedger)
		require.Error(t, err)
	})

	t.Run("rejects negative total", func(t *testing.T) {
		_, err := NewInvoice("001-002-000000001", "", decimal.NewFromInt(-1), SyncSourceLedger)
		require.Error(t, err)
	})
}

func TestNewLegacyInvoice(t *testing.T) {
	inv, err := NewLegacyInvoice("001-002-000124369", "001002-00124369", "", "", decimal.NewFromFloat(2.36))
	require.NoError(t, err)
	assert.True(t, inv.IsLegacy)
	assert.Equal(t, LegacyClientName, inv.ClientName)
	assert.Equal(t, LegacyTaxID, inv.ClientTaxID)
	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromFloat(2.36)))
	assert.Equal(t, SyncSourceLedger, inv.SyncSource)
}

func TestStatusFor(t *testing.T) {
	total := decimal.NewFromInt(100)
	assert.Equal(t, InvoiceStatusPending, StatusFor(decimal.Zero, total, false))
	assert.Equal(t, InvoiceStatusPartial, StatusFor(decimal.NewFromInt(40), total, false))
	assert.Equal(t, InvoiceStatusPaid, StatusFor(decimal.NewFromInt(100), total, false))
	assert.Equal(t, InvoiceStatusPaid, StatusFor(decimal.NewFromInt(120), total, false))
	assert.Equal(t, InvoiceStatusCancelled, StatusFor(decimal.NewFromInt(40), total, true))
}

func TestInvoice_ApplyPaymentTotal(t *testing.T) {
	inv, _ := NewInvoice("001-002-000000010", "", decimal.NewFromInt(100), SyncSourceLedger)

	require.NoError(t, inv.ApplyPaymentTotal(decimal.NewFromInt(30)))
	assert.Equal(t, InvoiceStatusPartial, inv.Status)

	require.NoError(t, inv.ApplyPaymentTotal(decimal.NewFromInt(100)))
	assert.Equal(t, InvoiceStatusPaid, inv.Status)

	err := inv.ApplyPaymentTotal(decimal.NewFromInt(50))
	require.Error(t, err)
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "PAID_AMOUNT_DECREASE", de.Code)
}

func TestInvoice_OverwriteFromSnapshot(t *testing.T) {
	t.Run("zero balance is paid", func(t *testing.T) {
		inv, _ := NewInvoice("001-002-000123570", "001002-00123570", decimal.Zero, SyncSourceLedger)
		inv.OverwriteFromSnapshot(decimal.NewFromFloat(113.00), decimal.Zero)

		assert.Equal(t, InvoiceStatusPaid, inv.Status)
		assert.True(t, inv.PaidAmount.Equal(decimal.NewFromFloat(113.00)))
		assert.Equal(t, SyncSourceSnapshot, inv.SyncSource)
	})

	t.Run("partial balance", func(t *testing.T) {
		inv, _ := NewInvoice("001-002-000000011", "", decimal.Zero, SyncSourceSnapshot)
		inv.OverwriteFromSnapshot(decimal.NewFromInt(100), decimal.NewFromInt(60))
		assert.Equal(t, InvoiceStatusPartial, inv.Status)
		assert.True(t, inv.PaidAmount.Equal(decimal.NewFromInt(40)))
	})

	t.Run("revives a superseded invoice", func(t *testing.T) {
		inv, _ := NewInvoice("001-002-000000012", "", decimal.NewFromInt(10), SyncSourceSnapshot)
		require.NoError(t, inv.Supersede(time.Now()))
		inv.OverwriteFromSnapshot(decimal.NewFromInt(10), decimal.NewFromInt(10))
		assert.Nil(t, inv.SupersededAt)
		assert.Equal(t, InvoiceStatusPending, inv.Status)
	})
}

func TestInvoice_EffectiveStatus(t *testing.T) {
	inv, _ := NewInvoice("001-002-000000013", "", decimal.NewFromInt(10), SyncSourceSnapshot)
	due := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	inv.DueDate = &due

	assert.Equal(t, InvoiceStatusPending, inv.EffectiveStatus(due.Add(-time.Hour)))
	assert.Equal(t, InvoiceStatusOverdue, inv.EffectiveStatus(due.Add(time.Hour)))
	assert.Equal(t, InvoiceStatusPending, inv.Status, "overdue is never stored")

	require.NoError(t, inv.ApplyPaymentTotal(decimal.NewFromInt(5)))
	assert.Equal(t, InvoiceStatusPartial, inv.EffectiveStatus(due.Add(time.Hour)))
}

func TestInvoice_ApplyCreditNote(t *testing.T) {
	inv, _ := NewInvoice("001-002-000000014", "", decimal.NewFromInt(10), SyncSourceSnapshot)
	require.NoError(t, inv.ApplyPaymentTotal(decimal.NewFromInt(4)))

	previous := inv.ApplyCreditNote()
	assert.Equal(t, InvoiceStatusPartial, previous)
	assert.Equal(t, InvoiceStatusCancelled, inv.Status)
	assert.True(t, inv.PaidAmount.Equal(decimal.NewFromInt(4)), "credit note never reverses paid amount")
}

func TestInvoice_LinkDocument(t *testing.T) {
	inv, _ := NewInvoice("001-002-000000015", "", decimal.NewFromInt(10), SyncSourceLedger)
	first, second := uuid.New(), uuid.New()

	assert.True(t, inv.LinkDocument(first, LinkConfidenceExactNumber))
	assert.False(t, inv.LinkDocument(second, LinkConfidenceExactReference))
	assert.Equal(t, first, *inv.DocumentID)
	assert.Equal(t, LinkConfidenceExactNumber, inv.LinkConfidence)
}

func TestInvoice_Supersede(t *testing.T) {
	t.Run("only snapshot invoices", func(t *testing.T) {
		inv, _ := NewInvoice("001-002-000000016", "", decimal.NewFromInt(10), SyncSourceMovement)
		require.Error(t, inv.Supersede(time.Now()))
	})

	t.Run("idempotent", func(t *testing.T) {
		inv, _ := NewInvoice("001-002-000000017", "", decimal.NewFromInt(10), SyncSourceSnapshot)
		at := time.Now()
		require.NoError(t, inv.Supersede(at))
		require.NoError(t, inv.Supersede(at.Add(time.Hour)))
		assert.Equal(t, at, *inv.SupersededAt)
	})
}

func TestInvoice_IsNewerModification(t *testing.T) {
	inv, _ := NewInvoice("001-002-000000018", "", decimal.NewFromInt(10), SyncSourceAgent)
	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	assert.True(t, inv.IsNewerModification(&t1))
	inv.KoinorModifiedAt = &t1
	assert.False(t, inv.IsNewerModification(&t1))
	assert.True(t, inv.IsNewerModification(&t2))
	assert.True(t, inv.IsNewerModification(nil), "untimestamped records always apply")
}
