package event

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

func TestNewEnvelope(t *testing.T) {
	correlationID := uuid.Must(uuid.NewV7())

	env, err := NewEnvelope(correlationID, "delivery.started", testPayload{MessageID: 42, Content: "hi"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, env.ID)
	assert.Equal(t, correlationID, env.CorrelationID)
	assert.Equal(t, "delivery.started", env.EventType)
	assert.WithinDuration(t, time.Now().UTC(), env.OccurredAt, time.Second)
	assert.NotEmpty(t, env.Payload)
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	env, err := NewEnvelope(uuid.Must(uuid.NewV7()), "delivery.timeout", nil)
	require.NoError(t, err)
	assert.Empty(t, env.Payload)
}

func TestEnvelope_DecodePayload(t *testing.T) {
	env, err := NewEnvelope(uuid.Must(uuid.NewV7()), "delivery.started", testPayload{MessageID: 7, Content: "x"})
	require.NoError(t, err)

	var decoded testPayload
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, int64(7), decoded.MessageID)
	assert.Equal(t, "x", decoded.Content)
}

func TestEnvelope_DecodePayload_Empty(t *testing.T) {
	env := &Envelope{EventType: "delivery.timeout"}
	var decoded testPayload
	assert.Error(t, env.DecodePayload(&decoded))
}

func TestEnvelope_MarshalRoundTrip(t *testing.T) {
	env, err := NewEnvelope(uuid.Must(uuid.NewV7()), "delivery.started", testPayload{MessageID: 42})
	require.NoError(t, err)

	data, err := env.Marshal()
	require.NoError(t, err)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, parsed.ID)
	assert.Equal(t, env.CorrelationID, parsed.CorrelationID)
	assert.Equal(t, env.EventType, parsed.EventType)
}

func TestUnmarshal_MissingEventType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"id":"00000000-0000-0000-0000-000000000000"}`))
	assert.Error(t, err)
}

func TestUnmarshal_InvalidJSON(t *testing.T) {
	_, err := Unmarshal([]byte(`{`))
	assert.Error(t, err)
}

func TestEnvelope_ToMessageFromMessage(t *testing.T) {
	env, err := NewEnvelope(uuid.Must(uuid.NewV7()), "delivery.started", testPayload{MessageID: 1})
	require.NoError(t, err)

	msg, err := env.ToMessage()
	require.NoError(t, err)
	assert.Equal(t, env.ID.String(), msg.UUID)
	assert.Equal(t, "delivery.started", msg.Metadata.Get("event_type"))
	assert.Equal(t, env.CorrelationID.String(), msg.Metadata.Get("correlation_id"))

	parsed, err := FromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, env.ID, parsed.ID)
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	handler := func(ctx context.Context, env *Envelope) error { return nil }

	require.NoError(t, registry.Register("delivery.started", handler))

	t.Run("duplicate registration fails", func(t *testing.T) {
		assert.Error(t, registry.Register("delivery.started", handler))
	})

	t.Run("empty event type fails", func(t *testing.T) {
		assert.Error(t, registry.Register("", handler))
	})

	t.Run("nil handler fails", func(t *testing.T) {
		assert.Error(t, registry.Register("delivery.other", nil))
	})
}

func TestRegistry_Handler(t *testing.T) {
	registry := NewRegistry()

	called := false
	require.NoError(t, registry.Register("delivery.started", func(ctx context.Context, env *Envelope) error {
		called = true
		return nil
	}))

	h, ok := registry.Handler("delivery.started")
	require.True(t, ok)
	require.NoError(t, h(context.Background(), &Envelope{}))
	assert.True(t, called)

	_, ok = registry.Handler("unknown.event")
	assert.False(t, ok)
}

func TestRegistry_EventTypes(t *testing.T) {
	registry := NewRegistry()
	noop := func(ctx context.Context, env *Envelope) error { return nil }

	require.NoError(t, registry.Register("b.event", noop))
	require.NoError(t, registry.Register("a.event", noop))

	assert.Equal(t, []string{"a.event", "b.event"}, registry.EventTypes())
}
