package dto

import (
	"net/http"
	"testing"

	"github.com/notaria/backend/internal/application/billing"
	domain "github.com/notaria/backend/internal/domain/billing"
	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{domain.ErrCodeValidation, http.StatusBadRequest},
		{domain.ErrCodeStructural, http.StatusUnprocessableEntity},
		{domain.ErrCodeStorage, http.StatusInternalServerError},
		{domain.ErrCodeIdempotencyConflict, http.StatusConflict},
		{billing.ErrDuplicateSubmission.Code, http.StatusConflict},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeRequestTooLarge, http.StatusRequestEntityTooLarge},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, GetHTTPStatus(tt.code))
		})
	}
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeStructural, "File structure not recognized", "req-1")
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Equal(t, "req-1", resp.Error.RequestID)

	ok := NewSuccessResponse(map[string]int{"created": 1})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)
}
