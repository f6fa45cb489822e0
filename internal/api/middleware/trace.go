package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/contacts-ledger/internal/api/shared"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
)

// NewTraceMiddleware assigns each request a trace ID and stores a request
// logger carrying it in the context. A well-formed X-Trace-ID request header
// is reused so clients can correlate their own logs. Apply it before any
// handler that logs.
func NewTraceMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(shared.TraceIDHeader)
			if !shared.ValidTraceID(traceID) {
				traceID = shared.NewTraceID()
			}
			ctx := shared.WithTraceID(r.Context(), traceID)

			reqLog := log.With(slog.String("trace_id", traceID))
			ctx = logger.WithLogger(ctx, reqLog)

			reqLog.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			w.Header().Set(shared.TraceIDHeader, traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
