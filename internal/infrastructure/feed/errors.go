package feed

import (
	"errors"
	"fmt"
	"strings"
)

// Feed error codes
const (
	ErrCodeStructural      = "STRUCTURAL_ERROR"
	ErrCodeMalformedXML    = "MALFORMED_XML"
	ErrCodeRequiredField   = "REQUIRED_FIELD"
	ErrCodeInvalidAmount   = "INVALID_AMOUNT"
	ErrCodeInvalidDate     = "INVALID_DATE"
	ErrCodeInvalidFormat   = "INVALID_FORMAT"
	ErrCodeNoInvoicesFound = "NO_INVOICES_FOUND"
)

// Default error sample caps per feed
const (
	LedgerErrorCap   = 10
	MovementErrorCap = 20
	SnapshotErrorCap = 20
)

var (
	// ErrEmptyFile is returned when the payload has no bytes
	ErrEmptyFile = errors.New("feed file is empty")

	// ErrUnknownKind is returned when no parser recognizes the content
	ErrUnknownKind = errors.New("feed kind not recognized")
)

// StructuralError means the payload could not be recognized as any feed.
// It is the only parse failure that aborts a run.
type StructuralError struct {
	FileName string
	Reason   string
	Err      error
}

// Error implements the error interface
func (e *StructuralError) Error() string {
	if e.FileName != "" {
		return fmt.Sprintf("structural error in %s: %s", e.FileName, e.Reason)
	}
	return "structural error: " + e.Reason
}

// Unwrap returns the underlying cause
func (e *StructuralError) Unwrap() error {
	return e.Err
}

func newStructuralError(fileName, reason string, err error) *StructuralError {
	return &StructuralError{FileName: fileName, Reason: reason, Err: err}
}

// IsStructural reports whether err is (or wraps) a StructuralError
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// GroupError describes one malformed group. Raw keeps the field map that
// was accumulated for the group so it can be logged.
type GroupError struct {
	Group   int               `json:"group"`
	Field   string            `json:"field,omitempty"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Value   string            `json:"value,omitempty"`
	Raw     map[string]string `json:"-"`
}

// Error implements the error interface
func (e GroupError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("group %d, field '%s': %s", e.Group, e.Field, e.Message)
	}
	return fmt.Sprintf("group %d: %s", e.Group, e.Message)
}

func requiredError(n int, field string, f fields) *GroupError {
	return &GroupError{Group: n, Field: field, Code: ErrCodeRequiredField,
		Message: "field '" + field + "' is required", Raw: f}
}

func amountError(n int, field string, f fields) *GroupError {
	return &GroupError{Group: n, Field: field, Code: ErrCodeInvalidAmount,
		Message: "invalid amount", Value: f.get(field), Raw: f}
}

func dateError(n int, field string, f fields) *GroupError {
	return &GroupError{Group: n, Field: field, Code: ErrCodeInvalidDate,
		Message: "invalid date, expected YYYY-MM-DD or DD/MM/YYYY", Value: f.get(field), Raw: f}
}

// ErrorCollection keeps a capped sample of group errors and the total count
type ErrorCollection struct {
	errors     []GroupError
	maxErrors  int
	totalCount int
}

// NewErrorCollection creates a new ErrorCollection with a maximum sample size
func NewErrorCollection(maxErrors int) *ErrorCollection {
	if maxErrors <= 0 {
		maxErrors = LedgerErrorCap
	}
	return &ErrorCollection{
		errors:    make([]GroupError, 0, maxErrors),
		maxErrors: maxErrors,
	}
}

// Add adds an error to the collection
func (ec *ErrorCollection) Add(err GroupError) {
	ec.totalCount++
	if len(ec.errors) < ec.maxErrors {
		ec.errors = append(ec.errors, err)
	}
}

// Errors returns the collected sample
func (ec *ErrorCollection) Errors() []GroupError {
	return ec.errors
}

// Count returns the number of collected errors (up to maxErrors)
func (ec *ErrorCollection) Count() int {
	return len(ec.errors)
}

// TotalCount returns the total number of errors including those not collected
func (ec *ErrorCollection) TotalCount() int {
	return ec.totalCount
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollection) HasErrors() bool {
	return ec.totalCount > 0
}

// IsTruncated returns true if some errors were not collected due to the limit
func (ec *ErrorCollection) IsTruncated() bool {
	return ec.totalCount > ec.maxErrors
}

// ErrorSummary returns a count of sampled errors by code
func (ec *ErrorCollection) ErrorSummary() map[string]int {
	summary := make(map[string]int)
	for _, err := range ec.errors {
		summary[err.Code]++
	}
	return summary
}

// String returns a string representation of all sampled errors
func (ec *ErrorCollection) String() string {
	if !ec.HasErrors() {
		return "no errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d error(s) found", ec.totalCount))
	if ec.IsTruncated() {
		sb.WriteString(fmt.Sprintf(" (showing first %d)", ec.maxErrors))
	}
	sb.WriteString(":\n")
	for _, err := range ec.errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}
