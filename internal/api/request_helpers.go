package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/api/shared"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/service/ledger"
)

// contactIDParam is the chi path parameter holding a contact id.
const contactIDParam = "id"

// getPathUUID extracts a UUID from the URL path parameters.
// A malformed id can never name an existing contact, so it is reported as
// ErrContactNotFound wrapping domain.ErrInvalidID.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ledger.ErrContactNotFound, domain.ErrInvalidID)
	}
	return id, nil
}

// handleContactID extracts the contact id from the path and writes the error
// response when it is missing or malformed.
func handleContactID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := getPathUUID(r, contactIDParam)
	if err != nil {
		logger.FromContextOrDefault(r.Context(), slog.Default()).Debug("invalid contact id",
			slog.String("value", chi.URLParam(r, contactIDParam)))
		HandleAPIError(w, r, err, "")
		return uuid.Nil, false
	}
	return id, true
}

// decodeAndValidate decodes a JSON body into req and validates it, writing a
// 400 response on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := shared.DecodeJSON(w, r, req); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %w", errBadRequest, err), "Invalid request format")
		return false
	}
	if err := shared.ValidateRequest(req); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %w", errBadRequest, err), SanitizeValidationError(err))
		return false
	}
	return true
}
