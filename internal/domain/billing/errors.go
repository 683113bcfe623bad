package billing

import "github.com/notaria/backend/internal/domain/shared"

// Error codes for the ingestion taxonomy
const (
	ErrCodeStructural          = "STRUCTURAL_ERROR"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	ErrCodeLinkingAmbiguity    = "LINKING_AMBIGUITY"
	ErrCodeStorage             = "STORAGE_ERROR"
	ErrCodeInvoiceNotFound     = "INVOICE_NOT_FOUND"
)

var (
	// ErrStructural means the file could not be recognized at all; the run aborts
	ErrStructural = shared.NewDomainError(ErrCodeStructural, "File structure not recognized")
	// ErrValidation marks a record missing a required field or carrying an invalid amount
	ErrValidation = shared.NewDomainError(ErrCodeValidation, "Record failed validation")
	// ErrIdempotencyConflict marks a payment already recorded; callers treat it as a no-op
	ErrIdempotencyConflict = shared.NewDomainError(ErrCodeIdempotencyConflict, "Payment already recorded")
	// ErrLinkingAmbiguity means several documents matched equally well
	ErrLinkingAmbiguity = shared.NewDomainError(ErrCodeLinkingAmbiguity, "More than one candidate document matched")
	// ErrStorage wraps a failed transaction for one record
	ErrStorage = shared.NewDomainError(ErrCodeStorage, "Storage operation failed")
)
