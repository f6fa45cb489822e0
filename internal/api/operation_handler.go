package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phrazzld/contacts-ledger/internal/api/shared"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/redact"
	"github.com/phrazzld/contacts-ledger/internal/service/ledger"
)

// OperationHandler handles a contact's ledger: applying operations, history,
// CSV export and verification.
type OperationHandler struct {
	service ledger.Service
	logger  *slog.Logger
}

// NewOperationHandler creates a new OperationHandler.
func NewOperationHandler(service ledger.Service, log *slog.Logger) *OperationHandler {
	if service == nil {
		// ALLOW-PANIC: constructor enforcing required dependency
		panic("service cannot be nil for OperationHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &OperationHandler{
		service: service,
		logger:  log.With(slog.String("component", "operation_handler")),
	}
}

// ApplyOperation handles POST /contacts/{id}/operations.
func (h *OperationHandler) ApplyOperation(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := handleContactID(w, r)
	if !ok {
		return
	}

	var req ApplyOperationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	kind, amount, err := req.parse()
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	op, err := h.service.ApplyOperation(r.Context(), id, kind, amount)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("operation applied",
		slog.String("contact_id", id.String()),
		slog.String("operation_id", op.ID.String()),
		slog.String("kind", string(op.Kind)),
		slog.Int64("sequence", op.Sequence))
	shared.RespondWithJSON(w, r, http.StatusOK, operationToResponse(op))
}

// ListOperations handles GET /contacts/{id}/operations?start=&end=.
func (h *OperationHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	id, ok := handleContactID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	ops, err := h.service.ListOperations(r.Context(), id, q.Get("start"), q.Get("end"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, operationsToResponse(ops))
}

// ExportOperations handles GET /contacts/{id}/export?start=&end=.
// The CSV is rendered completely before any byte is written.
func (h *OperationHandler) ExportOperations(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := handleContactID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	export, err := h.service.ExportOperations(r.Context(), id, q.Get("start"), q.Get("end"))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", ledger.ContentDisposition(export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(export.Body); err != nil {
		log.Warn("failed to write export body",
			slog.String("contact_id", id.String()),
			slog.String("error", redact.Error(err)))
		return
	}

	log.Debug("operations exported",
		slog.String("contact_id", id.String()),
		slog.Int("rows", export.Rows))
}

// VerifyLedger handles GET /contacts/{id}/ledger/verify.
func (h *OperationHandler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, ok := handleContactID(w, r)
	if !ok {
		return
	}

	report, err := h.service.VerifyLedger(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if !report.Consistent {
		log.Warn("ledger inconsistency detected",
			slog.String("contact_id", id.String()),
			slog.String("problem", report.Problem))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, reportToResponse(report))
}
