package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/contacts-ledger/internal/api/shared"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()

	buf, log := logger.NewTestLogger(t)

	var traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("handled")
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	NewTraceMiddleware(log)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/contacts", nil))

	require.NotEmpty(t, traceID)
	assert.Equal(t, traceID, rr.Header().Get(shared.TraceIDHeader))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	entries, err := buf.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, traceID, entry["trace_id"])
	}
	logger.AssertLogField(t, buf, "msg", "request started")
}

func TestTraceMiddleware_NilLogger(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	NewTraceMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, rr.Header().Get(shared.TraceIDHeader))
}

func TestTraceMiddleware_ReusesClientTraceID(t *testing.T) {
	t.Parallel()

	const clientID = "0123456789abcdef0123456789abcdef"
	var got string
	handler := NewTraceMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(shared.TraceIDHeader, clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, clientID, got)
	assert.Equal(t, clientID, rr.Header().Get(shared.TraceIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(shared.TraceIDHeader, "not a trace id; DROP TABLE")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "not a trace id; DROP TABLE", got)
	assert.True(t, shared.ValidTraceID(got))
}
