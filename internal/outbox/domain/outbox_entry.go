// Package domain defines the core outbox domain entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/event"
)

// EntryStatus represents the status of an outbox entry.
type EntryStatus string

const (
	EntryStatusPending    EntryStatus = "pending"
	EntryStatusProcessing EntryStatus = "processing"
	EntryStatusProcessed  EntryStatus = "processed"
	EntryStatusFailed     EntryStatus = "failed"
)

// IsValid reports whether the status is part of the outbox lifecycle.
func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryStatusPending, EntryStatusProcessing, EntryStatusProcessed, EntryStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from s to next is allowed.
// Processed and Failed are terminal for the processor; a failed entry is only
// revived by external remediation, never automatically.
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	switch s {
	case EntryStatusPending:
		return next == EntryStatusProcessing
	case EntryStatusProcessing:
		return next == EntryStatusPending || next == EntryStatusProcessed || next == EntryStatusFailed
	default:
		return false
	}
}

// Entry represents an event staged in the transactional outbox. The payload is
// the serialized event envelope; EventType is duplicated as a column so entries
// can be inspected without parsing payloads.
type Entry struct {
	ID          uuid.UUID
	EventType   string
	Payload     []byte
	Status      EntryStatus
	RetryCount  int
	NextRetryAt *time.Time
	ProcessedAt *time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewEntry stages an event envelope as a pending outbox entry. The envelope id
// becomes the entry id, so the same logical event never occupies two rows.
func NewEntry(env *event.Envelope) (*Entry, error) {
	payload, err := env.Marshal()
	if err != nil {
		return nil, err
	}

	return &Entry{
		ID:        env.ID,
		EventType: env.EventType,
		Payload:   payload,
		Status:    EntryStatusPending,
	}, nil
}

// Envelope parses the staged payload back into an event envelope.
func (e *Entry) Envelope() (*event.Envelope, error) {
	return event.Unmarshal(e.Payload)
}

// IsDue reports whether a pending entry is eligible for processing at now.
func (e *Entry) IsDue(now time.Time) bool {
	if e.Status != EntryStatusPending {
		return false
	}
	return e.NextRetryAt == nil || !e.NextRetryAt.After(now)
}

// MarkProcessed finalizes a successfully published entry.
func (e *Entry) MarkProcessed(now time.Time) {
	e.Status = EntryStatusProcessed
	e.ProcessedAt = &now
	e.LastError = nil
	e.NextRetryAt = nil
}

// RecordFailure registers a failed publish attempt. The entry returns to
// pending with the next delay from the backoff table, or becomes terminally
// failed once maxRetries attempts have been spent.
func (e *Entry) RecordFailure(publishErr error, now time.Time, maxRetries int, delays []time.Duration) {
	e.RetryCount++
	msg := publishErr.Error()
	e.LastError = &msg

	if e.RetryCount >= maxRetries {
		e.Status = EntryStatusFailed
		e.NextRetryAt = nil
		return
	}

	next := now.Add(RetryDelay(e.RetryCount, delays))
	e.Status = EntryStatusPending
	e.NextRetryAt = &next
}

// RetryDelay returns the backoff delay to apply after the given attempt count.
// Attempts past the end of the table reuse its last entry.
func RetryDelay(retryCount int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(delays) {
		idx = len(delays) - 1
	}
	return delays[idx]
}
