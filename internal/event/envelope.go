// Package event defines the wire envelope shared by the outbox, the message bus
// and all consumers, plus a static registry that maps event types to handlers.
package event

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	apperrors "github.com/allisson/courier/internal/errors"
)

// Envelope is the canonical shape of every event and command exchanged through
// the system: a stable id, the correlation id tying it to one workflow instance,
// a string event type discriminator, the emission instant and an opaque payload.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope creates an envelope with a fresh UUIDv7 id and the current instant.
// The payload is serialized to JSON immediately so marshaling errors surface at
// creation time, not at publish time.
func NewEnvelope(correlationID uuid.UUID, eventType string, payload any) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal event payload")
		}
		raw = data
	}

	return &Envelope{
		ID:            uuid.Must(uuid.NewV7()),
		CorrelationID: correlationID,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		Payload:       raw,
	}, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "event has no payload")
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return apperrors.Wrap(err, "failed to decode event payload")
	}
	return nil
}

// Marshal serializes the envelope to its JSON wire format.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal event envelope")
	}
	return data, nil
}

// Unmarshal parses an envelope from its JSON wire format.
func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal event envelope")
	}
	if env.EventType == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "event envelope has no event type")
	}
	return &env, nil
}

// ToMessage converts the envelope into a watermill message. The envelope id is
// reused as the message UUID so broker-level deduplication sees the same identity.
func (e *Envelope) ToMessage() (*message.Message, error) {
	data, err := e.Marshal()
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(e.ID.String(), data)
	msg.Metadata.Set("event_type", e.EventType)
	msg.Metadata.Set("correlation_id", e.CorrelationID.String())
	return msg, nil
}

// FromMessage parses an envelope out of a watermill message payload.
func FromMessage(msg *message.Message) (*Envelope, error) {
	return Unmarshal(msg.Payload)
}
