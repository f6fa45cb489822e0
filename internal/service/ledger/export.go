package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/domain"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/phrazzld/contacts-ledger/internal/redact"
)

// CSVContentType is the media type of an export body.
const CSVContentType = "text/csv; charset=utf-8"

// csvHeader is the first row of every export.
var csvHeader = []string{"Fecha y Hora", "Tipo", "Monto", "Balance Posterior"}

// Filename placeholders used when a bound is open.
const (
	openStartLabel = "inicio"
	openEndLabel   = "actual"
)

// ExportOperations implements Service.
func (s *serviceImpl) ExportOperations(
	ctx context.Context,
	contactID uuid.UUID,
	start, end string,
) (*Export, error) {
	contact, ops, err := s.history(ctx, "export_operations", contactID, start, end)
	if err != nil {
		return nil, err
	}

	body, err := s.renderCSV(ops)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to render export",
			slog.String("contact_id", contactID.String()),
			slog.String("error", redact.Error(err)))
		return nil, &ServiceError{Operation: "export_operations", Message: "failed to render csv", Err: err}
	}

	return &Export{
		Filename:    ExportFilename(contact.Name, start, end),
		ContentType: CSVContentType,
		Body:        body,
		Rows:        len(ops),
	}, nil
}

// renderCSV writes the header and one row per operation, in the given order.
func (s *serviceImpl) renderCSV(ops []*domain.Operation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, op := range ops {
		row := []string{
			op.CreatedAt.In(s.cfg.Location).Format(s.cfg.TimeLayout),
			op.Kind.Label(),
			domain.FormatSignedMoney(op.Kind, op.Amount),
			domain.FormatMoney(op.BalanceAfter),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportFilename builds operaciones_<name>_<start>_<end>.csv, substituting
// "inicio" and "actual" for open bounds. Timestamp bounds are reduced to their
// date. Path separators, colons and control characters are replaced with
// underscores.
func ExportFilename(name, start, end string) string {
	return fmt.Sprintf("operaciones_%s_%s_%s.csv",
		sanitizeFilename(name), boundLabel(start, openStartLabel), boundLabel(end, openEndLabel))
}

func boundLabel(raw, open string) string {
	if domain.IsOpenBound(raw) {
		return open
	}
	s := strings.TrimSpace(raw)
	if len(s) >= len(time.DateOnly) {
		if _, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)]); err == nil {
			return s[:len(time.DateOnly)]
		}
	}
	return sanitizeFilename(s)
}

// ContentDisposition returns the Content-Disposition value for downloading
// filename. Non-ASCII names are encoded per RFC 2231.
func ContentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, s)
}
