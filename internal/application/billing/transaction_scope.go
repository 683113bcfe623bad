package billing

import (
	"context"

	"github.com/notaria/backend/internal/domain/billing"
)

// TransactionScope provides transactional access to billing repositories.
// Every per-record mutation of the reconciliation engine runs inside one
// Execute call and is committed or rolled back as a unit.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all billing repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type TransactionalRepositories interface {
	// Invoices returns the invoice repository scoped to the current transaction
	Invoices() billing.InvoiceRepository
	// Payments returns the payment repository scoped to the current transaction
	Payments() billing.PaymentRepository
	// Documents returns the document port scoped to the current transaction
	Documents() billing.DocumentStore
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpTransactionScope struct {
	invoices  billing.InvoiceRepository
	payments  billing.PaymentRepository
	documents billing.DocumentStore
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	invoices billing.InvoiceRepository,
	payments billing.PaymentRepository,
	documents billing.DocumentStore,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		invoices:  invoices,
		payments:  payments,
		documents: documents,
	}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Invoices returns the invoice repository
func (s *NoOpTransactionScope) Invoices() billing.InvoiceRepository {
	return s.invoices
}

// Payments returns the payment repository
func (s *NoOpTransactionScope) Payments() billing.PaymentRepository {
	return s.payments
}

// Documents returns the document port
func (s *NoOpTransactionScope) Documents() billing.DocumentStore {
	return s.documents
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
