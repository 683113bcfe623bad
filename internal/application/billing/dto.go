package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// Sync agent limits
const (
	MaxRecordsPerRequest = 2000
	DefaultHistoryLimit  = 20
	MaxHistoryLimit      = 50
)

// AgentRecord is one invoice row pushed by the Koinor sync agent
type AgentRecord struct {
	InvoiceNumber     string           `json:"numero_factura" validate:"required,max=64"`
	ProtocolNumber    string           `json:"numero_protocolo" validate:"omitempty,max=64"`
	ClientTaxID       string           `json:"cliente_cedula" validate:"omitempty,max=20"`
	ClientName        string           `json:"cliente_nombre" validate:"omitempty,max=255"`
	TotalAmount       *decimal.Decimal `json:"total_factura" validate:"required"`
	PaidAmount        *decimal.Decimal `json:"total_pagado"`
	PaymentStatus     string           `json:"estado_pago" validate:"omitempty,oneof=PAGADA PARCIAL PENDIENTE ANULADA"`
	IssueDate         string           `json:"fecha_emision"`
	DueDate           string           `json:"fecha_vencimiento"`
	LastPaymentDate   string           `json:"fecha_ultimo_pago"`
	LastModified      string           `json:"ultima_modificacion"`
	HasCreditNoteFlag string           `json:"tiene_nota_credito"`
}

// HasCreditNote reports the agent's "SI" flag
func (r AgentRecord) HasCreditNote() bool {
	return strings.EqualFold(strings.TrimSpace(r.HasCreditNoteFlag), "SI")
}

// Status maps the Koinor payment state onto the invoice lifecycle
func (r AgentRecord) Status() billing.InvoiceStatus {
	if r.HasCreditNote() {
		return billing.InvoiceStatusCancelled
	}
	switch strings.ToUpper(strings.TrimSpace(r.PaymentStatus)) {
	case "PAGADA":
		return billing.InvoiceStatusPaid
	case "PARCIAL":
		return billing.InvoiceStatusPartial
	case "ANULADA":
		return billing.InvoiceStatusCancelled
	default:
		return billing.InvoiceStatusPending
	}
}

// SyncRequest is the body posted by the sync agent. Older agents send Data.
type SyncRequest struct {
	AgentVersion  string        `json:"agentVersion"`
	SyncStartedAt string        `json:"syncStartedAt"`
	Records       []AgentRecord `json:"records"`
	Data          []AgentRecord `json:"data"`
}

// AllRecords returns Records followed by any legacy Data rows
func (r SyncRequest) AllRecords() []AgentRecord {
	if len(r.Data) == 0 {
		return r.Records
	}
	all := make([]AgentRecord, 0, len(r.Records)+len(r.Data))
	all = append(all, r.Records...)
	return append(all, r.Data...)
}

// RunSummary is the outcome of one ingestion run
type RunSummary struct {
	SyncID          uuid.UUID             `json:"syncId"`
	FileName        string                `json:"fileName,omitempty"`
	FileType        billing.FileType      `json:"fileType"`
	Status          billing.RunStatus     `json:"status"`
	TotalRows       int                   `json:"totalRows"`
	Created         int                   `json:"created"`
	Updated         int                   `json:"updated"`
	Unchanged       int                   `json:"unchanged"`
	Skipped         int                   `json:"skipped"`
	Errors          int                   `json:"errors"`
	DocumentsLinked int                   `json:"documentsLinked"`
	Superseded      int                   `json:"superseded"`
	DurationMs      int64                 `json:"durationMs"`
	ErrorSample     []billing.ErrorDetail `json:"errorSample,omitempty"`
}

func summaryFromLog(l *billing.SyncLog) *RunSummary {
	c := l.Counters
	return &RunSummary{
		SyncID:          l.ID,
		FileName:        l.FileName,
		FileType:        l.FileType,
		Status:          l.Status,
		TotalRows:       c.TotalRows,
		Created:         c.Created,
		Updated:         c.Updated,
		Unchanged:       c.Unchanged,
		Skipped:         c.Skipped,
		Errors:          c.Errors,
		DocumentsLinked: c.DocumentsLinked,
		Superseded:      c.Superseded,
		DurationMs:      l.DurationMs,
		ErrorSample:     l.ErrorDetails,
	}
}

// SyncLogResponse represents a SyncLog in API responses
type SyncLogResponse struct {
	ID           uuid.UUID             `json:"id"`
	FileName     string                `json:"fileName"`
	FileType     billing.FileType      `json:"fileType"`
	AgentVersion string                `json:"agentVersion,omitempty"`
	Status       billing.RunStatus     `json:"status"`
	Counters     billing.RunCounters   `json:"counters"`
	ErrorDetails []billing.ErrorDetail `json:"errorDetails,omitempty"`
	StartedAt    time.Time             `json:"startedAt"`
	CompletedAt  *time.Time            `json:"completedAt,omitempty"`
	DurationMs   int64                 `json:"durationMs"`
}

// ToSyncLogResponse converts a domain SyncLog
func ToSyncLogResponse(l *billing.SyncLog) SyncLogResponse {
	return SyncLogResponse{
		ID:           l.ID,
		FileName:     l.FileName,
		FileType:     l.FileType,
		AgentVersion: l.AgentVersion,
		Status:       l.Status,
		Counters:     l.Counters,
		ErrorDetails: l.ErrorDetails,
		StartedAt:    l.StartedAt,
		CompletedAt:  l.CompletedAt,
		DurationMs:   l.DurationMs,
	}
}

// SyncStatus is the health view of the most recent run
type SyncStatus struct {
	LastSync             *SyncLogResponse `json:"lastSync"`
	MinutesSinceLastSync *int             `json:"minutesSinceLastSync"`
	Healthy              bool             `json:"healthy"`
}

var agentTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseAgentTime returns nil for an empty or unparseable value
func parseAgentTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range agentTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
