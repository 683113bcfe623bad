package persistence

import (
	"testing"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/infrastructure/config"
	"github.com/notaria/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

// setupBillingDB opens an in-memory SQLite database with the billing schema.
// A single connection keeps every query on the same in-memory database.
func setupBillingDB(t *testing.T) *Database {
	t.Helper()

	db, err := Open(sqlite.Open(":memory:"), &config.DatabaseConfig{MaxOpenConns: 1, MaxIdleConns: 1}, DatabaseOptions{})
	require.NoError(t, err)
	require.NoError(t, db.DB.AutoMigrate(
		&models.InvoiceModel{},
		&models.PaymentModel{},
		&models.SyncLogModel{},
		&models.DocumentModel{},
		&models.PaymentEventModel{},
	))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestInvoice(t *testing.T, canonical, raw, total string) *billing.Invoice {
	t.Helper()
	inv, err := billing.NewInvoice(canonical, raw, dec(total), billing.SyncSourceSnapshot)
	require.NoError(t, err)
	return inv
}
