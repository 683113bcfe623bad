package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestGormInvoiceRepository_CreateAndFind(t *testing.T) {
	db := setupBillingDB(t)
	repo := NewGormInvoiceRepository(db.DB, db.Caps)
	ctx := context.Background()

	inv := newTestInvoice(t, "001-002-000123570", "001002-00123570", "113.00")
	inv.ClientName = "JUAN PEREZ"
	require.NoError(t, repo.Create(ctx, inv))

	t.Run("finds by canonical spelling", func(t *testing.T) {
		found, err := repo.FindByAnyNumber(ctx, []string{"001-002-000123570"})
		require.NoError(t, err)
		assert.Equal(t, inv.ID, found.ID)
		assert.True(t, found.TotalAmount.Equal(dec("113")))
		assert.Equal(t, billing.InvoiceStatusPending, found.Status)
	})

	t.Run("finds by raw spelling", func(t *testing.T) {
		found, err := repo.FindByAnyNumber(ctx, []string{"nope", "001002-00123570"})
		require.NoError(t, err)
		assert.Equal(t, "JUAN PEREZ", found.ClientName)
	})

	t.Run("unknown number is not found", func(t *testing.T) {
		_, err := repo.FindByAnyNumber(ctx, []string{"001-002-000999999"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
		_, err = repo.FindByAnyNumber(ctx, nil)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate number is rejected", func(t *testing.T) {
		dup := newTestInvoice(t, "001-002-000123570", "001002-00123570", "1")
		assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)
	})

	t.Run("find by id", func(t *testing.T) {
		found, err := repo.FindByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, "001-002-000123570", found.InvoiceNumber)
		_, err = repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormInvoiceRepository_Update(t *testing.T) {
	db := setupBillingDB(t)
	repo := NewGormInvoiceRepository(db.DB, db.Caps)
	ctx := context.Background()

	inv := newTestInvoice(t, "001-002-000124369", "001002-00124369", "10.00")
	require.NoError(t, repo.Create(ctx, inv))
	startVersion := inv.Version

	stale, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)

	require.NoError(t, inv.ApplyPaymentTotal(dec("2.36")))
	require.NoError(t, repo.Update(ctx, inv))
	assert.Equal(t, startVersion+1, inv.Version)

	stored, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.PaidAmount.Equal(dec("2.36")))
	assert.Equal(t, billing.InvoiceStatusPartial, stored.Status)
	assert.Equal(t, inv.Version, stored.Version)

	require.NoError(t, stale.ApplyPaymentTotal(dec("5")))
	err = repo.Update(ctx, stale)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, startVersion, stale.Version)
}

func TestGormInvoiceRepository_FindOpenBySource(t *testing.T) {
	db := setupBillingDB(t)
	repo := NewGormInvoiceRepository(db.DB, db.Caps)
	ctx := context.Background()

	open := newTestInvoice(t, "001-002-000000001", "001002-00000001", "10")
	paid := newTestInvoice(t, "001-002-000000002", "001002-00000002", "10")
	require.NoError(t, paid.ApplyPaymentTotal(dec("10")))
	superseded := newTestInvoice(t, "001-002-000000003", "001002-00000003", "10")
	require.NoError(t, superseded.Supersede(time.Now()))
	ledger, err := billing.NewInvoice("001-002-000000004", "001002-00000004", dec("10"), billing.SyncSourceLedger)
	require.NoError(t, err)

	for _, inv := range []*billing.Invoice{open, paid, superseded, ledger} {
		require.NoError(t, repo.Create(ctx, inv))
	}

	got, err := repo.FindOpenBySource(ctx, billing.SyncSourceSnapshot)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)
}

func TestGormPaymentRepository(t *testing.T) {
	db := setupBillingDB(t)
	invoices := NewGormInvoiceRepository(db.DB, db.Caps)
	repo := NewGormPaymentRepository(db.DB, db.Caps)
	ctx := context.Background()

	inv := newTestInvoice(t, "001-002-000124370", "001002-00124370", "23.63")
	require.NoError(t, invoices.Create(ctx, inv))

	sum, err := repo.SumByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())

	day := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)
	first, err := billing.NewPayment(inv.ID, "001-2601000305", dec("20.00"), day, billing.PaymentTypeTransfer, billing.SyncSourceLedger)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, first))

	t.Run("same receipt for the same invoice is an idempotency conflict", func(t *testing.T) {
		again, err := billing.NewPayment(inv.ID, "001-2601000305", dec("20.00"), day, billing.PaymentTypeTransfer, billing.SyncSourceLedger)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, again), billing.ErrIdempotencyConflict)
	})

	second, err := billing.NewPayment(inv.ID, "001-2601000400", dec("3.63"), day.AddDate(0, 0, 1), billing.PaymentTypeCash, billing.SyncSourceMovement)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, second))

	exists, err := repo.Exists(ctx, "001-2601000305", inv.ID)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.Exists(ctx, "001-2601000305", uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)

	sum, err = repo.SumByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(dec("23.63")), sum.String())

	list, err := repo.ListByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "001-2601000305", list[0].ReceiptNumber)
	assert.Equal(t, billing.PaymentTypeCash, list[1].PaymentType)
}

// newMockInvoiceRepository creates a repository over a mocked postgres connection
func newMockInvoiceRepository(t *testing.T) (*GormInvoiceRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return NewGormInvoiceRepository(gormDB, DetectCapabilities(gormDB)), mock, mockDB
}

func TestGormInvoiceRepository_Update_SQL(t *testing.T) {
	t.Run("guards the write with the read version", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		inv := newTestInvoice(t, "001-002-000124369", "001002-00124369", "10")
		inv.Version = 3

		mock.ExpectExec(`UPDATE "invoices" SET .* WHERE \(id = \$\d+ AND version = \$\d+\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(context.Background(), inv))
		assert.Equal(t, 4, inv.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows is a concurrency conflict", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		inv := newTestInvoice(t, "001-002-000124369", "001002-00124369", "10")

		mock.ExpectExec(`UPDATE "invoices" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), inv)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create uses ON CONFLICT DO NOTHING on postgres", func(t *testing.T) {
		repo, mock, mockDB := newMockInvoiceRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`INSERT INTO "invoices" .* ON CONFLICT \("invoice_number"\) DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Create(context.Background(), newTestInvoice(t, "001-002-000124369", "001002-00124369", "10"))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
