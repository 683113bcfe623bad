// Package models contains the GORM persistence models for the billing tables.
// Domain types stay free of ORM tags; each model carries a FromDomain
// constructor and a ToDomain mapper.
//
// Tables:
//   - invoices: one row per canonical invoice number
//   - payments: unique per (receipt_number, invoice_id)
//   - sync_logs: one row per ingestion run
//   - documents: notarial documents owned by the surrounding system
//   - document_payment_events: payment timeline per document
//
// The schema of record lives in migrations/; AutoMigrate is only used by tests.
package models
