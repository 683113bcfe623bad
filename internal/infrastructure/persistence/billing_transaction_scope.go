package persistence

import (
	"context"

	appbilling "github.com/notaria/backend/internal/application/billing"
	"github.com/notaria/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Every record the reconciler settles is committed or rolled back as a unit.
type GormTransactionScope struct {
	db   *gorm.DB
	caps Capabilities
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB, caps Capabilities) *GormTransactionScope {
	return &GormTransactionScope{db: db, caps: caps}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, caps: s.caps})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx   *gorm.DB
	caps Capabilities
}

// Invoices returns the invoice repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Invoices() billing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx, r.caps)
}

// Payments returns the payment repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Payments() billing.PaymentRepository {
	return NewGormPaymentRepository(r.tx, r.caps)
}

// Documents returns the document store scoped to the current transaction.
func (r *gormTransactionalRepositories) Documents() billing.DocumentStore {
	return NewGormDocumentStore(r.tx, r.caps)
}

var _ appbilling.TransactionScope = (*GormTransactionScope)(nil)

var _ appbilling.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
