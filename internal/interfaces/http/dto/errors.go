package dto

import "net/http"

// API error codes not produced by the domain
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeNotFound        = "NOT_FOUND"
)

// Domain error codes surfaced through the API
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeStructural          = "STRUCTURAL_ERROR"
	ErrCodeStorage             = "STORAGE_ERROR"
	ErrCodeDuplicateSubmission = "DUPLICATE_SUBMISSION"
	ErrCodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeInvalidInput        = "INVALID_INPUT"
)

// errorCodeHTTPStatus maps error codes to HTTP status codes
var errorCodeHTTPStatus = map[string]int{
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeDuplicateSubmission: http.StatusConflict,
	ErrCodeIdempotencyConflict: http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodeStructural:          http.StatusUnprocessableEntity,
	ErrCodeStorage:             http.StatusInternalServerError,
	ErrCodeInternal:            http.StatusInternalServerError,
}

// GetHTTPStatus returns the status for code; unknown codes are 500
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
