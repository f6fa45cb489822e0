package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/contacts-ledger/internal/api/shared"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/redact"
)

// healthCheckTimeout bounds the store ping of one health request.
const healthCheckTimeout = 2 * time.Second

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	pinger Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. A nil pinger always reports OK.
func NewHealthHandler(pinger Pinger, log *slog.Logger) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{pinger: pinger, logger: log.With(slog.String("component", "health_handler"))}
}

// Health responds {"status":"OK"}, or 503 when the store ping fails.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			logger.FromContextOrDefault(r.Context(), h.logger).
				Warn("store ping failed", slog.String("error", redact.Error(err)))
			shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Store unavailable",
				shared.WithErrorKind(KindStoreUnavailable))
			return
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "OK"})
}
