package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		title  string
	}{
		{"validation", shared.Validation("lines[0].quantity", "must be positive"), http.StatusBadRequest, "Validation Failed"},
		{"wrapped validation sentinel", fmt.Errorf("%w: bad", shared.ErrValidation), http.StatusBadRequest, "Validation Failed"},
		{"not found", fmt.Errorf("load: %w", shared.ErrNotFound), http.StatusNotFound, "Not Found"},
		{"already processed", fmt.Errorf("%w: ACCEPTED", shared.ErrAlreadyProcessed), http.StatusConflict, "Already Processed"},
		{"invalid state", fmt.Errorf("%w: DRAFT to PAID", shared.ErrInvalidState), http.StatusConflict, "Invalid State"},
		{"conflict", shared.ErrConcurrencyConflict, http.StatusConflict, "Conflict"},
		{"duplicate", shared.ErrDuplicate, http.StatusConflict, "Duplicate"},
		{"unauthorized", shared.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tt.err)

			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.title, body.Title)
			assert.Equal(t, tt.status, body.Status)
		})
	}
}

func TestRespondErrorValidationField(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("create: %w", shared.Validation("discount.value", "must not be negative")))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "discount.value", body.Field)
	assert.Equal(t, "must not be negative", body.Detail)
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: password authentication failed"))

	assert.NotContains(t, rec.Body.String(), "password")
}
