package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/contacts-ledger/internal/api/shared"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/service/ledger"
)

// ContactHandler handles contact-related HTTP requests.
type ContactHandler struct {
	service ledger.Service
	logger  *slog.Logger
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(service ledger.Service, log *slog.Logger) *ContactHandler {
	if service == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("service cannot be nil for ContactHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ContactHandler{
		service: service,
		logger:  log.With(slog.String("component", "contact_handler")),
	}
}

// CreateContact handles POST /contacts.
func (h *ContactHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateContactRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	contact, err := h.service.CreateContact(r.Context(), req.Name, req.Email)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("contact created", slog.String("contact_id", contact.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, contactToResponse(contact))
}

// ListContacts handles GET /contacts.
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.service.ListContacts(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, contactsToResponse(contacts))
}

// GetContact handles GET /contacts/{id}.
func (h *ContactHandler) GetContact(w http.ResponseWriter, r *http.Request) {
	id, ok := handleContactID(w, r)
	if !ok {
		return
	}

	contact, err := h.service.GetContact(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, contactToResponse(contact))
}

// RenameContact handles PATCH /contacts/{id}. Only the name can change.
func (h *ContactHandler) RenameContact(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := handleContactID(w, r)
	if !ok {
		return
	}

	var req RenameContactRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	contact, err := h.service.RenameContact(r.Context(), id, req.Name)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("contact renamed", slog.String("contact_id", id.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, contactToResponse(contact))
}
