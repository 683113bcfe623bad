package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber    string                `gorm:"type:varchar(32);not null;uniqueIndex"`
	InvoiceNumberRaw string                `gorm:"type:varchar(32);index"`
	ClientTaxID      string                `gorm:"type:varchar(20)"`
	ClientName       string                `gorm:"type:varchar(255);index"`
	TotalAmount      decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	PaidAmount       decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Status           billing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	IssueDate        *time.Time
	DueDate          *time.Time
	SourceFile       string                 `gorm:"type:varchar(255)"`
	IsLegacy         bool                   `gorm:"not null;default:false"`
	HasCreditNote    bool                   `gorm:"not null;default:false"`
	DocumentID       *uuid.UUID             `gorm:"type:uuid;index"`
	LinkConfidence   billing.LinkConfidence `gorm:"type:varchar(20)"`
	ProtocolNumber   string                 `gorm:"type:varchar(64)"`
	SyncSource       billing.SyncSource     `gorm:"type:varchar(20);not null;index"`
	LastSyncAt       *time.Time
	KoinorModifiedAt *time.Time
	SupersededAt     *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: m.BaseModel.entity(),
			Version:    m.Version,
		},
		InvoiceNumber:    m.InvoiceNumber,
		InvoiceNumberRaw: m.InvoiceNumberRaw,
		ClientTaxID:      m.ClientTaxID,
		ClientName:       m.ClientName,
		TotalAmount:      m.TotalAmount,
		PaidAmount:       m.PaidAmount,
		Status:           m.Status,
		IssueDate:        m.IssueDate,
		DueDate:          m.DueDate,
		SourceFile:       m.SourceFile,
		IsLegacy:         m.IsLegacy,
		HasCreditNote:    m.HasCreditNote,
		DocumentID:       m.DocumentID,
		LinkConfidence:   m.LinkConfidence,
		ProtocolNumber:   m.ProtocolNumber,
		SyncSource:       m.SyncSource,
		LastSyncAt:       m.LastSyncAt,
		KoinorModifiedAt: m.KoinorModifiedAt,
		SupersededAt:     m.SupersededAt,
	}
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.setAggregate(inv.BaseAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.InvoiceNumberRaw = inv.InvoiceNumberRaw
	m.ClientTaxID = inv.ClientTaxID
	m.ClientName = inv.ClientName
	m.TotalAmount = inv.TotalAmount
	m.PaidAmount = inv.PaidAmount
	m.Status = inv.Status
	m.IssueDate = inv.IssueDate
	m.DueDate = inv.DueDate
	m.SourceFile = inv.SourceFile
	m.IsLegacy = inv.IsLegacy
	m.HasCreditNote = inv.HasCreditNote
	m.DocumentID = inv.DocumentID
	m.LinkConfidence = inv.LinkConfidence
	m.ProtocolNumber = inv.ProtocolNumber
	m.SyncSource = inv.SyncSource
	m.LastSyncAt = inv.LastSyncAt
	m.KoinorModifiedAt = inv.KoinorModifiedAt
	m.SupersededAt = inv.SupersededAt
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentModel is the persistence model for Payment.
// (receipt_number, invoice_id) is unique.
type PaymentModel struct {
	BaseModel
	ReceiptNumber string              `gorm:"type:varchar(64);not null;uniqueIndex:idx_payments_receipt_invoice"`
	InvoiceID     uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_payments_receipt_invoice;index"`
	Amount        decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	PaymentDate   time.Time           `gorm:"not null"`
	PaymentType   billing.PaymentType `gorm:"type:varchar(20);not null"`
	Source        billing.SyncSource  `gorm:"type:varchar(20);not null"`
	Concept       string              `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *billing.Payment {
	return &billing.Payment{
		BaseEntity:    m.BaseModel.entity(),
		ReceiptNumber: m.ReceiptNumber,
		Amount:        m.Amount,
		PaymentDate:   m.PaymentDate,
		PaymentType:   m.PaymentType,
		InvoiceID:     m.InvoiceID,
		Source:        m.Source,
		Concept:       m.Concept,
	}
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{
		ReceiptNumber: p.ReceiptNumber,
		InvoiceID:     p.InvoiceID,
		Amount:        p.Amount,
		PaymentDate:   p.PaymentDate,
		PaymentType:   p.PaymentType,
		Source:        p.Source,
		Concept:       p.Concept,
	}
	m.setEntity(p.BaseEntity)
	return m
}

// SyncLogModel is the persistence model for SyncLog
type SyncLogModel struct {
	AggregateModel
	FileName        string            `gorm:"type:varchar(255);not null"`
	FileType        billing.FileType  `gorm:"type:varchar(20);not null;index"`
	AgentVersion    string            `gorm:"type:varchar(32)"`
	ArchiveKey      string            `gorm:"type:varchar(512)"`
	Status          billing.RunStatus `gorm:"type:varchar(20);not null;default:'PROCESSING'"`
	TotalRows       int               `gorm:"not null;default:0"`
	Created         int               `gorm:"not null;default:0"`
	Updated         int               `gorm:"not null;default:0"`
	Unchanged       int               `gorm:"not null;default:0"`
	Skipped         int               `gorm:"not null;default:0"`
	Errors          int               `gorm:"not null;default:0"`
	DocumentsLinked int               `gorm:"not null;default:0"`
	Superseded      int               `gorm:"not null;default:0"`
	ErrorDetails    string            `gorm:"type:text;default:'[]'"`
	StartedAt       time.Time         `gorm:"not null;index"`
	CompletedAt     *time.Time        `gorm:"index"`
	DurationMs      int64             `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog
func (m *SyncLogModel) ToDomain() *billing.SyncLog {
	l := &billing.SyncLog{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: m.BaseModel.entity(),
			Version:    m.Version,
		},
		FileName:     m.FileName,
		FileType:     m.FileType,
		AgentVersion: m.AgentVersion,
		ArchiveKey:   m.ArchiveKey,
		Status:       m.Status,
		Counters: billing.RunCounters{
			TotalRows:       m.TotalRows,
			Created:         m.Created,
			Updated:         m.Updated,
			Unchanged:       m.Unchanged,
			Skipped:         m.Skipped,
			Errors:          m.Errors,
			DocumentsLinked: m.DocumentsLinked,
			Superseded:      m.Superseded,
		},
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		DurationMs:  m.DurationMs,
	}
	if m.ErrorDetails != "" {
		_ = l.SetErrorDetailsFromJSON(m.ErrorDetails)
	}
	return l
}

// FromDomain populates the persistence model from a domain SyncLog
func (m *SyncLogModel) FromDomain(l *billing.SyncLog) {
	m.setAggregate(l.BaseAggregateRoot)
	m.FileName = l.FileName
	m.FileType = l.FileType
	m.AgentVersion = l.AgentVersion
	m.ArchiveKey = l.ArchiveKey
	m.Status = l.Status
	m.TotalRows = l.Counters.TotalRows
	m.Created = l.Counters.Created
	m.Updated = l.Counters.Updated
	m.Unchanged = l.Counters.Unchanged
	m.Skipped = l.Counters.Skipped
	m.Errors = l.Counters.Errors
	m.DocumentsLinked = l.Counters.DocumentsLinked
	m.Superseded = l.Counters.Superseded
	m.StartedAt = l.StartedAt
	m.CompletedAt = l.CompletedAt
	m.DurationMs = l.DurationMs

	if errorJSON, err := l.ErrorDetailsJSON(); err == nil {
		m.ErrorDetails = errorJSON
	} else {
		m.ErrorDetails = "[]"
	}
}

// SyncLogModelFromDomain creates a persistence model from a domain SyncLog
func SyncLogModelFromDomain(l *billing.SyncLog) *SyncLogModel {
	m := &SyncLogModel{}
	m.FromDomain(l)
	return m
}

// DocumentModel is the slice of the notarial documents table billing reads
// and writes. Workflow columns are owned by the document service.
type DocumentModel struct {
	BaseModel
	ProtocolNumber           string `gorm:"type:varchar(64);index"`
	ClientName               string `gorm:"type:varchar(255);index"`
	InvoiceNumber            string `gorm:"type:varchar(32);index"`
	Status                   string `gorm:"type:varchar(32);not null;default:'PENDIENTE'"`
	PaymentConfirmed         bool   `gorm:"not null;default:false"`
	ArchivalText             string `gorm:"type:text"`
	CreditNoteReason         string `gorm:"type:varchar(255)"`
	CreditNotePreviousStatus string `gorm:"type:varchar(20)"`
	CreditNoteAt             *time.Time
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "documents"
}

// ToDomain converts the persistence model to a DocumentRef
func (m *DocumentModel) ToDomain() billing.DocumentRef {
	return billing.DocumentRef{
		ID:               m.ID,
		ProtocolNumber:   m.ProtocolNumber,
		ClientName:       m.ClientName,
		InvoiceNumber:    m.InvoiceNumber,
		PaymentConfirmed: m.PaymentConfirmed,
		ArchivalText:     m.ArchivalText,
		CreatedAt:        m.CreatedAt,
	}
}

// PaymentEventModel is one entry of a document's payment timeline
type PaymentEventModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	DocumentID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	InvoiceID     uuid.UUID       `gorm:"type:uuid;not null"`
	ReceiptNumber string          `gorm:"type:varchar(64);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	OccurredAt    time.Time       `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentEventModel) TableName() string {
	return "document_payment_events"
}

// PaymentEventModelFromDomain creates a persistence model from a PaymentEvent
func PaymentEventModelFromDomain(e billing.PaymentEvent) *PaymentEventModel {
	return &PaymentEventModel{
		ID:            e.ID,
		DocumentID:    e.DocumentID,
		InvoiceID:     e.InvoiceID,
		ReceiptNumber: e.ReceiptNumber,
		Amount:        e.Amount,
		OccurredAt:    e.OccurredAt,
		CreatedAt:     time.Now(),
	}
}
