// Package billing provides domain models for reconciling invoice and payment
// state exported by the Koinor accounting system against notarial case documents.
//
// Key Aggregates:
//   - Invoice: receivable identified by a canonical invoice number, owning its Payments
//   - SyncLog: audit record of one ingestion run
//
// Value Objects:
//   - InvoiceStatus, PaymentType, SyncSource, LinkConfidence
//   - CreditNote: applied as a status transition, never persisted on its own
//
// The billing domain integrates with the document workflow only through the
// DocumentStore port and never changes a document's workflow status.
package billing
