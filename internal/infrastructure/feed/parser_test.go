package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParser_Ledger(t *testing.T) {
	p := NewParser(zap.NewNop())

	b, err := p.Parse(utf16LE(t, ledgerXML), "estado_cuenta.xml", "")
	require.NoError(t, err)
	batch, ok := b.(*LedgerBatch)
	require.True(t, ok)

	t.Run("groups payments by receipt", func(t *testing.T) {
		require.Len(t, batch.Payments, 1)
		pay := batch.Payments[0]
		assert.Equal(t, "001-2601000305", pay.ReceiptNumber)
		assert.Equal(t, "PEREZ & ASOCIADOS", pay.ClientName)
		require.Len(t, pay.Allocations, 2)
		assert.Equal(t, "001002-00124369", pay.Allocations[0].InvoiceNumberRaw)
		assert.True(t, pay.Allocations[0].Amount.Equal(decimal.RequireFromString("2.36")))
		assert.Equal(t, "001002-00124370", pay.Allocations[1].InvoiceNumberRaw)
		assert.True(t, pay.Total().Equal(decimal.RequireFromString("25.99")))
		assert.Equal(t, time.Date(2026, 1, 19, 0, 0, 0, 0, Location), pay.Date)
	})

	t.Run("credit notes use absolute amount", func(t *testing.T) {
		require.Len(t, batch.CreditNotes, 1)
		nc := batch.CreditNotes[0]
		assert.Equal(t, "001002-00124001", nc.InvoiceNumberRaw)
		assert.True(t, nc.Amount.Equal(decimal.NewFromInt(10)))
		assert.Equal(t, "ANULACION POR ERROR", nc.Reason)
		assert.Equal(t, time.Date(2026, 1, 20, 0, 0, 0, 0, Location), nc.Date)
	})

	t.Run("report", func(t *testing.T) {
		r := batch.Summary()
		assert.Equal(t, KindLedger, batch.Kind())
		assert.Equal(t, EncodingUTF16LE, r.Encoding)
		assert.Equal(t, 5, r.RowsSeen)
		assert.Equal(t, 1, r.Ignored)
		assert.Equal(t, 2, r.RecordsExtracted)
		assert.Equal(t, 1, r.TotalErrors)
		require.Len(t, r.Errors, 1)
		assert.Equal(t, ErrCodeRequiredField, r.Errors[0].Code)
		assert.Equal(t, "numdoc", r.Errors[0].Field)
		assert.Equal(t, "001002-00124371", r.Errors[0].Raw["numtra"])
	})
}

func TestParser_LedgerErrorCap(t *testing.T) {
	xml := "<d_vc_i_estado_cuenta>"
	for i := 0; i < 15; i++ {
		xml += "<d_vc_i_estado_cuenta_group1><tipdoc>AB</tipdoc><numdoc>R</numdoc><numtra>001002-00000001</numtra><valcob>0</valcob><fecemi>2026-01-01</fecemi></d_vc_i_estado_cuenta_group1>"
	}
	xml += "</d_vc_i_estado_cuenta>"

	b, err := NewParser(nil).Parse([]byte(xml), "big.xml", KindLedger)
	require.NoError(t, err)
	r := b.Summary()
	assert.Len(t, r.Errors, LedgerErrorCap)
	assert.Equal(t, 15, r.TotalErrors)
	assert.Equal(t, ErrCodeInvalidAmount, r.Errors[0].Code)
}

func TestParser_Movement(t *testing.T) {
	b, err := NewParser(nil).Parse(utf16LE(t, movementXML), "mov.xml", "")
	require.NoError(t, err)
	batch, ok := b.(*MovementBatch)
	require.True(t, ok)

	require.Len(t, batch.Invoices, 1)
	inv := batch.Invoices[0]
	assert.Equal(t, "FC001002-00124216", inv.Code)
	assert.Equal(t, "001002-00124216", inv.InvoiceNumberRaw)
	assert.Equal(t, ConditionCash, inv.Condition)
	assert.True(t, inv.TotalAmount.Equal(decimal.RequireFromString("45.50")))
	assert.True(t, inv.CashAmount.Equal(decimal.RequireFromString("45.50")))
	assert.Equal(t, "0912345678", inv.ClientTaxID)
	assert.Equal(t, "MARIA FERNANDA LOPEZ", inv.ClientName)
	assert.Equal(t, "CAJA 1", inv.Seller)
	require.NotNil(t, inv.IssueDate)

	r := batch.Summary()
	assert.Equal(t, 4, r.RowsSeen)
	assert.Equal(t, 2, r.Ignored)
	assert.Equal(t, 1, r.TotalErrors)
	assert.Equal(t, movCash, r.Errors[0].Field)
}

func TestParser_Snapshot(t *testing.T) {
	b, err := NewParser(nil).Parse(utf16LE(t, snapshotXML), "cxc_20260128.xml", "")
	require.NoError(t, err)
	batch, ok := b.(*SnapshotBatch)
	require.True(t, ok)

	assert.Equal(t, "cxc_20260128", batch.RootTag)
	require.NotNil(t, batch.SnapshotDate)
	assert.Equal(t, time.Date(2026, 1, 28, 0, 0, 0, 0, Location), *batch.SnapshotDate)

	require.Len(t, batch.Invoices, 2)
	first := batch.Invoices[0]
	assert.Equal(t, "001002-00123570", first.InvoiceNumberRaw)
	assert.Equal(t, "1712345678", first.ClientTaxID)
	assert.Equal(t, "JUAN PEREZ", first.ClientName)
	assert.True(t, first.TotalAmount.Equal(decimal.RequireFromString("113")))
	assert.True(t, first.Balance.IsZero())
	require.NotNil(t, first.DueDate)
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, Location), *first.DueDate)

	second := batch.Invoices[1]
	assert.True(t, second.TotalAmount.Equal(decimal.NewFromInt(50)), "total is absolute")
	assert.True(t, second.Balance.Equal(decimal.NewFromInt(50)), "balance falls back to total")

	assert.Equal(t, []string{"001002-00123572"}, batch.FailedNumbers)
	assert.Equal(t, 2, batch.Report.RowsSeen)
	assert.Equal(t, 1, batch.Report.TotalErrors)
}

func TestParser_SnapshotNoInvoices(t *testing.T) {
	xml := `<cxc_20260201><cxc_20260201_row><clientes_codcli>1</clientes_codcli></cxc_20260201_row>` +
		`<cxc_20260201_row><clientes_codcli>2</clientes_codcli></cxc_20260201_row></cxc_20260201>`

	b, err := NewParser(nil).Parse([]byte(xml), "cxc.xml", KindSnapshot)
	require.NoError(t, err)
	r := b.Summary()
	assert.Equal(t, 2, r.RowsSeen)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, ErrCodeNoInvoicesFound, r.Errors[0].Code)
}

func TestNormalizeSnapshotField(t *testing.T) {
	assert.Equal(t, "numtra", normalizeSnapshotField("TMPFACTURAS_NUMTRA"))
	assert.Equal(t, "saldo", normalizeSnapshotField("csaldo"))
	assert.Equal(t, "codcli", normalizeSnapshotField("cxc_20260128_clientes_codcli"))
	assert.Equal(t, "observacion", normalizeSnapshotField("cxc_20260128_observacion"))
	assert.Equal(t, "otro", normalizeSnapshotField("otro"))
}

func TestParser_MalformedXML(t *testing.T) {
	t.Run("after first group keeps what was read", func(t *testing.T) {
		xml := `<d_vc_i_estado_cuenta><d_vc_i_estado_cuenta_group1><tipdoc>AB</tipdoc><numdoc>R1</numdoc>` +
			`<numtra>001002-00000001</numtra><valcob>1</valcob><fecemi>2026-01-01</fecemi></d_vc_i_estado_cuenta_group1>` +
			`<d_vc_i_estado_cuenta_group1><tipdoc>AB</tipdo></d_vc_i_estado_cuenta>`

		b, err := NewParser(nil).Parse([]byte(xml), "cut.xml", "")
		require.NoError(t, err)
		batch := b.(*LedgerBatch)
		assert.Len(t, batch.Payments, 1)
		require.Len(t, batch.Report.Errors, 1)
		assert.Equal(t, ErrCodeMalformedXML, batch.Report.Errors[0].Code)
	})

	t.Run("before first group is structural", func(t *testing.T) {
		xml := `<d_vc_i_estado_cuenta><d_vc_i_estado_cuenta_group1><tipdoc>AB</tipdo>`
		_, err := NewParser(nil).Parse([]byte(xml), "cut.xml", "")
		require.Error(t, err)
		assert.True(t, IsStructural(err))
	})
}

func TestParser_KindSelection(t *testing.T) {
	p := NewParser(nil)

	t.Run("declared kind must match content", func(t *testing.T) {
		_, err := p.Parse([]byte(movementXML), "mov.xml", KindLedger)
		require.Error(t, err)
		assert.True(t, IsStructural(err))
	})

	t.Run("declared kind matching content", func(t *testing.T) {
		b, err := p.Parse([]byte(movementXML), "mov.xml", KindMovement)
		require.NoError(t, err)
		assert.Equal(t, KindMovement, b.Kind())
	})

	t.Run("xml without known tags", func(t *testing.T) {
		_, err := p.Parse([]byte(`<?xml version="1.0"?><other/>`), "other.xml", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownKind)
	})
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("cartera")
	require.NoError(t, err)
	assert.Equal(t, KindSnapshot, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, Kind(""), k)

	_, err = ParseKind("pdf")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
