package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/contacts-ledger/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler is a mock EventHandler that keeps what it received.
type recordingHandler struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	contactID := uuid.New()
	event, err := NewEvent(TypeContactCreated, ContactCreatedPayload{ContactID: contactID, Name: "Ana"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, TypeContactCreated, event.Type)
	assert.False(t, event.CreatedAt.IsZero())

	var payload ContactCreatedPayload
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, contactID, payload.ContactID)
	assert.Equal(t, "Ana", payload.Name)
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	t.Parallel()
	_, err := NewEvent(TypeOperationApplied, make(chan int))
	assert.Error(t, err)
}

func TestInMemoryEventEmitter(t *testing.T) {
	t.Parallel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		event, err := NewEvent(TypeContactCreated, ContactCreatedPayload{ContactID: uuid.New()})
		require.NoError(t, err)
		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	})

	t.Run("all handlers receive the event", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		first, second := &recordingHandler{}, &recordingHandler{}
		emitter.RegisterHandler(first)
		emitter.RegisterHandler(second)

		event, err := NewEvent(TypeContactCreated, ContactCreatedPayload{ContactID: uuid.New()})
		require.NoError(t, err)
		require.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, 1, first.count())
		assert.Equal(t, 1, second.count())
		assert.Same(t, event, first.events[0])
	})

	t.Run("failing handler does not stop delivery", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		failing := &recordingHandler{err: errors.New("handler error")}
		after := &recordingHandler{}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(after)

		event, err := NewEvent(TypeContactCreated, ContactCreatedPayload{ContactID: uuid.New()})
		require.NoError(t, err)

		err = emitter.EmitEvent(context.Background(), event)
		require.Error(t, err)
		assert.Equal(t, "handler error", err.Error())
		assert.Equal(t, 1, after.count())
	})

	t.Run("handlers receive only subscribed types", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(log)
		operations, everything := &recordingHandler{}, &recordingHandler{}
		emitter.RegisterHandler(operations, TypeOperationApplied)
		emitter.RegisterHandler(everything)

		created, err := NewEvent(TypeContactCreated, ContactCreatedPayload{ContactID: uuid.New()})
		require.NoError(t, err)
		applied, err := NewEvent(TypeOperationApplied, OperationAppliedPayload{})
		require.NoError(t, err)

		require.NoError(t, emitter.EmitEvent(context.Background(), created))
		require.NoError(t, emitter.EmitEvent(context.Background(), applied))

		assert.Equal(t, 1, operations.count())
		assert.Same(t, applied, operations.events[0])
		assert.Equal(t, 2, everything.count())
	})

	t.Run("handler func", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(nil)
		var got string
		emitter.RegisterHandler(HandlerFunc(func(_ context.Context, e *Event) error {
			got = e.Type
			return nil
		}))

		event, err := NewEvent(TypeOperationApplied, OperationAppliedPayload{})
		require.NoError(t, err)
		require.NoError(t, emitter.EmitEvent(context.Background(), event))
		assert.Equal(t, TypeOperationApplied, got)
	})
}

func TestAuditLogHandler(t *testing.T) {
	t.Parallel()

	t.Run("operation applied", func(t *testing.T) {
		buf, log := logger.NewTestLogger(t)
		handler := NewAuditLogHandler(log)

		opID := uuid.New()
		event, err := NewEvent(TypeOperationApplied, OperationAppliedPayload{
			OperationID:  opID,
			ContactID:    uuid.New(),
			Kind:         "debit",
			Amount:       "20",
			BalanceAfter: "30",
			Sequence:     2,
		})
		require.NoError(t, err)
		require.NoError(t, handler.HandleEvent(context.Background(), event))

		logger.AssertLogField(t, buf, "event_type", TypeOperationApplied)
		logger.AssertLogField(t, buf, "operation_id", opID.String())
		logger.AssertLogField(t, buf, "balance_after", "30")
		logger.AssertLogField(t, buf, "component", "audit")
	})

	t.Run("contact created omits the name", func(t *testing.T) {
		buf, log := logger.NewTestLogger(t)
		handler := NewAuditLogHandler(log)

		event, err := NewEvent(TypeContactCreated, ContactCreatedPayload{ContactID: uuid.New(), Name: "Zoe Private"})
		require.NoError(t, err)
		require.NoError(t, handler.HandleEvent(context.Background(), event))

		logger.AssertLogField(t, buf, "event_type", TypeContactCreated)
		assert.NotContains(t, buf.String(), "Zoe Private")
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, log := logger.NewTestLogger(t)
		handler := NewAuditLogHandler(log)

		event := &Event{ID: uuid.New(), Type: TypeOperationApplied, Payload: []byte(`"oops"`)}
		assert.Error(t, handler.HandleEvent(context.Background(), event))
	})
}
