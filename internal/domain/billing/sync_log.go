package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/notaria/backend/internal/domain/shared"
)

// FileType identifies the feed a run ingested
type FileType string

const (
	FileTypeLedger   FileType = "LEDGER"
	FileTypeMovement FileType = "MOVEMENT"
	FileTypeSnapshot FileType = "SNAPSHOT"
	FileTypeAgent    FileType = "AGENT"
	// FileTypeUnknown is held by a run whose content has not been sniffed yet
	FileTypeUnknown FileType = "UNKNOWN"
)

// IsValid checks if the file type is valid
func (t FileType) IsValid() bool {
	switch t {
	case FileTypeLedger, FileTypeMovement, FileTypeSnapshot, FileTypeAgent, FileTypeUnknown:
		return true
	}
	return false
}

// RunStatus represents the status of an ingestion run
type RunStatus string

const (
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusSuccess    RunStatus = "SUCCESS"
	RunStatusPartial    RunStatus = "PARTIAL"
	RunStatusFailed     RunStatus = "FAILED"
)

// IsTerminal returns true if this is a terminal state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusPartial || s == RunStatusFailed
}

// IsHealthy reports whether a run with this status counts as a healthy sync
func (s RunStatus) IsHealthy() bool {
	return s == RunStatusSuccess || s == RunStatusPartial
}

// MaxErrorSampleSize is the most error details a SyncLog keeps. Callers
// sampling errors must not ask for more.
const MaxErrorSampleSize = 10

// ErrorDetail is one captured record failure
type ErrorDetail struct {
	Record  string `json:"record,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunCounters aggregates per-record outcomes
type RunCounters struct {
	TotalRows       int `json:"totalRows"`
	Created         int `json:"created"`
	Updated         int `json:"updated"`
	Unchanged       int `json:"unchanged"`
	Skipped         int `json:"skipped"`
	Errors          int `json:"errors"`
	DocumentsLinked int `json:"documentsLinked"`
	Superseded      int `json:"superseded"`
}

// Succeeded returns the number of records that did not fail
func (c RunCounters) Succeeded() int {
	return c.Created + c.Updated + c.Unchanged + c.Skipped
}

// SyncLog is the audit record of one ingestion run
type SyncLog struct {
	shared.BaseAggregateRoot
	FileName     string        `json:"file_name"`
	FileType     FileType      `json:"file_type"`
	AgentVersion string        `json:"agent_version,omitempty"`
	ArchiveKey   string        `json:"archive_key,omitempty"`
	Counters     RunCounters   `json:"counters"`
	Status       RunStatus     `json:"status"`
	ErrorDetails []ErrorDetail `json:"error_details,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
}

// NewSyncLog starts an audit record in PROCESSING
func NewSyncLog(fileName string, fileType FileType) (*SyncLog, error) {
	if fileName == "" {
		return nil, shared.NewDomainError("INVALID_FILE_NAME", "File name cannot be empty")
	}
	if !fileType.IsValid() {
		return nil, shared.NewDomainErrorf("INVALID_FILE_TYPE", "Invalid file type: %s", fileType)
	}
	return &SyncLog{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		FileName:          fileName,
		FileType:          fileType,
		Status:            RunStatusProcessing,
		ErrorDetails:      make([]ErrorDetail, 0),
		StartedAt:         time.Now(),
	}, nil
}

// SetFileType records the detected feed kind while the run is still open
func (l *SyncLog) SetFileType(t FileType) {
	if l.Status == RunStatusProcessing && t.IsValid() {
		l.FileType = t
	}
}

// TerminalStatusFor computes SUCCESS / PARTIAL / FAILED from counters
func TerminalStatusFor(c RunCounters) RunStatus {
	switch {
	case c.Errors == 0:
		return RunStatusSuccess
	case c.Succeeded() > 0:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

// Complete finalizes the run from its counters and an error sample
func (l *SyncLog) Complete(counters RunCounters, sample []ErrorDetail) error {
	if l.Status.IsTerminal() {
		return shared.NewDomainErrorf("INVALID_STATE", "Cannot complete sync log from state: %s", l.Status)
	}
	l.Counters = counters
	l.Status = TerminalStatusFor(counters)
	l.setErrors(sample)
	l.finish()
	return nil
}

// Fail finalizes the run as FAILED
func (l *SyncLog) Fail(counters RunCounters, sample []ErrorDetail) error {
	if l.Status.IsTerminal() {
		return shared.NewDomainErrorf("INVALID_STATE", "Cannot fail sync log from state: %s", l.Status)
	}
	l.Counters = counters
	l.Status = RunStatusFailed
	l.setErrors(sample)
	l.finish()
	return nil
}

func (l *SyncLog) setErrors(sample []ErrorDetail) {
	if len(sample) > MaxErrorSampleSize {
		sample = sample[:MaxErrorSampleSize]
	}
	l.ErrorDetails = sample
}

func (l *SyncLog) finish() {
	now := time.Now()
	l.CompletedAt = &now
	l.DurationMs = now.Sub(l.StartedAt).Milliseconds()
	l.Touch(now)
	l.IncrementVersion()
}

// ErrorDetailsJSON returns the error details as a JSON string
func (l *SyncLog) ErrorDetailsJSON() (string, error) {
	if len(l.ErrorDetails) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l.ErrorDetails)
	if err != nil {
		return "", fmt.Errorf("failed to marshal error details: %w", err)
	}
	return string(data), nil
}

// SetErrorDetailsFromJSON parses error details from a JSON string
func (l *SyncLog) SetErrorDetailsFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "[]" {
		l.ErrorDetails = make([]ErrorDetail, 0)
		return nil
	}
	var details []ErrorDetail
	if err := json.Unmarshal([]byte(jsonStr), &details); err != nil {
		return fmt.Errorf("failed to unmarshal error details: %w", err)
	}
	l.ErrorDetails = details
	return nil
}

// MinutesSince returns whole minutes elapsed since the run completed (or started)
func (l *SyncLog) MinutesSince(now time.Time) int {
	ref := l.StartedAt
	if l.CompletedAt != nil {
		ref = *l.CompletedAt
	}
	return int(now.Sub(ref).Minutes())
}
