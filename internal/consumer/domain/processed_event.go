// Package domain contains the idempotent-consumer model: the processed-event
// record used to deduplicate redelivered events.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/event"
)

// ProcessedEvent records that one event was handled. The (EventID, EventType)
// pair is the dedup key: a second delivery of the same pair is skipped.
type ProcessedEvent struct {
	EventID     string    `json:"event_id" db:"event_id"`
	EventType   string    `json:"event_type" db:"event_type"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}

// NewProcessedEvent creates a processed-event record for an envelope.
func NewProcessedEvent(env *event.Envelope, now time.Time) *ProcessedEvent {
	return &ProcessedEvent{
		EventID:     EventID(env),
		EventType:   env.EventType,
		ProcessedAt: now,
	}
}

// EventID derives the dedup identity of an envelope. The envelope id is used
// when present; envelopes produced without one fall back to a content hash of
// the event type and payload, so the same content always maps to the same id.
func EventID(env *event.Envelope) string {
	if env.ID != uuid.Nil {
		return env.ID.String()
	}

	h := sha256.New()
	h.Write([]byte(env.EventType))
	h.Write(env.Payload)
	return hex.EncodeToString(h.Sum(nil))
}

// IsStale reports whether an envelope emitted at occurredAt is older than the
// staleness window and should be dropped instead of handled. A zero
// occurredAt is never considered stale.
func IsStale(occurredAt time.Time, window time.Duration, now time.Time) bool {
	if occurredAt.IsZero() || window <= 0 {
		return false
	}
	return now.Sub(occurredAt) > window
}
