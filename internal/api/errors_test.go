package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/service/ledger"
	"github.com/phrazzld/contacts-ledger/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"contact not found", ledger.ErrContactNotFound, http.StatusNotFound, KindNotFound},
		{"store not found", fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound, KindNotFound},
		{"malformed id", domain.ErrInvalidID, http.StatusNotFound, KindNotFound},
		{"email taken", ledger.ErrEmailTaken, http.StatusBadRequest, KindEmailTaken},
		{"invalid amount", fmt.Errorf("%w: got 0", domain.ErrInvalidAmount), http.StatusBadRequest, KindInvalidAmount},
		{"invalid kind", domain.ErrInvalidKind, http.StatusBadRequest, KindInvalidKind},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusBadRequest, KindInsufficientFunds},
		{"invalid date range", domain.ErrInvalidDateRange, http.StatusBadRequest, KindInvalidDateRange},
		{"validation", domain.ErrEmptyContactName, http.StatusBadRequest, KindValidationFailed},
		{"bad request", errBadRequest, http.StatusBadRequest, KindValidationFailed},
		{
			"store unavailable",
			&ledger.ServiceError{Operation: "apply_operation", Err: ledger.ErrStoreUnavailable},
			http.StatusServiceUnavailable,
			KindStoreUnavailable,
		},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, KindInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantStatus, MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.wantKind, ErrorKind(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Insufficient funds", GetSafeErrorMessage(domain.ErrInsufficientFunds))
	assert.Equal(t, "Name is required", GetSafeErrorMessage(domain.ErrEmptyContactName))
	assert.Equal(t, "Invalid sequence: must be positive",
		GetSafeErrorMessage(domain.NewValidationError("sequence", "must be positive", domain.ErrValidation)))

	leaky := fmt.Errorf("query failed: SELECT * FROM contacts WHERE email = 'ana@example.com'")
	msg := GetSafeErrorMessage(leaky)
	assert.Equal(t, "An unexpected error occurred", msg)
	assert.NotContains(t, msg, "ana@example.com")
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	type request struct {
		Name string `validate:"required"`
		Note string `validate:"max=2"`
	}
	v := validator.New()

	err := v.Struct(request{Note: "ok"})
	assert.Equal(t, "Invalid Name: required field", SanitizeValidationError(err))

	err = v.Struct(request{Name: "x", Note: "too long"})
	assert.Equal(t, "Invalid Note: too long", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("something else")))
}

func TestHandleAPIError_LogsRedactedError(t *testing.T) {
	t.Parallel()

	buf, log := logger.NewTestLogger(t)
	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	req = req.WithContext(logger.WithLogger(req.Context(), log))
	rr := httptest.NewRecorder()

	HandleAPIError(rr, req, errors.New("dial postgres://ledger:hunter2@db:5432/ledger failed"), "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "hunter2")
	assert.NotContains(t, buf.String(), "hunter2")
	logger.AssertLogField(t, buf, "error_kind", KindInternal)
	logger.AssertLogField(t, buf, "status_code", float64(http.StatusInternalServerError))
}
