package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
)

// AuditLogHandler records every ledger event as one structured log line at
// INFO, with the payload fields flattened into attributes.
type AuditLogHandler struct {
	logger *slog.Logger
}

// NewAuditLogHandler creates an AuditLogHandler. If log is nil, slog.Default() is used.
func NewAuditLogHandler(log *slog.Logger) *AuditLogHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuditLogHandler{logger: log.With("component", "audit")}
}

// HandleEvent implements EventHandler.
func (h *AuditLogHandler) HandleEvent(ctx context.Context, event *Event) error {
	log := logger.FromContextOrDefault(ctx, h.logger)

	attrs := []any{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type),
		slog.Time("event_time", event.CreatedAt),
	}

	switch event.Type {
	case TypeContactCreated:
		var p ContactCreatedPayload
		if err := event.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		attrs = append(attrs, slog.String("contact_id", p.ContactID.String()))
	case TypeOperationApplied:
		var p OperationAppliedPayload
		if err := event.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		attrs = append(attrs,
			slog.String("contact_id", p.ContactID.String()),
			slog.String("operation_id", p.OperationID.String()),
			slog.String("kind", p.Kind),
			slog.String("amount", p.Amount),
			slog.String("balance_after", p.BalanceAfter),
			slog.Int64("sequence", p.Sequence))
	default:
		attrs = append(attrs, slog.String("payload", string(event.Payload)))
	}

	log.Info("ledger event", attrs...)
	return nil
}
