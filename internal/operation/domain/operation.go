// Package domain defines the operation tracking ledger entity. An operation is
// the externally visible record of one workflow run, keyed by the correlation
// id clients poll for progress and outcome.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/courier/internal/errors"
)

// Status represents the lifecycle state of a tracked operation.
type Status string

// Operation statuses.
const (
	StatusPending            Status = "pending"
	StatusInProgress         Status = "in_progress"
	StatusCompleted          Status = "completed"
	StatusPartiallyCompleted Status = "partially_completed"
	StatusFailed             Status = "failed"
	StatusCompensated        Status = "compensated"
	StatusCancelled          Status = "cancelled"
)

// Operation is a ledger row tracking one workflow run. Updates are
// last-write-wins on UpdatedAt; updates arriving after a terminal status are
// accepted as informational corrections.
type Operation struct {
	CorrelationID uuid.UUID       `json:"correlation_id"`
	OperationType string          `json:"operation_type"`
	UserID        int64           `json:"user_id"`
	ChatID        *int64          `json:"chat_id,omitempty"`
	Status        Status          `json:"status"`
	Progress      int             `json:"progress"`
	StatusMessage *string         `json:"status_message,omitempty"`
	OperationData json.RawMessage `json:"operation_data,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	ErrorCode     *string         `json:"error_code,omitempty"`
	CancelReason  *string         `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewOperation creates a pending operation for a workflow run.
func NewOperation(correlationID uuid.UUID, operationType string, userID int64, chatID *int64) *Operation {
	return &Operation{
		CorrelationID: correlationID,
		OperationType: operationType,
		UserID:        userID,
		ChatID:        chatID,
		Status:        StatusPending,
		Progress:      0,
	}
}

// IsActive reports whether the operation is still running.
func (o *Operation) IsActive() bool {
	return o.Status == StatusPending || o.Status == StatusInProgress
}

// IsCompleted reports whether the operation reached a completion outcome.
func (o *Operation) IsCompleted() bool {
	switch o.Status {
	case StatusCompleted, StatusPartiallyCompleted, StatusFailed, StatusCompensated:
		return true
	}
	return false
}

// CanBeCancelled reports whether a cancel request is still meaningful.
func (o *Operation) CanBeCancelled() bool {
	return o.IsActive()
}

// MarkInProgress moves a pending operation to in_progress. StartedAt is set on
// the first call only.
func (o *Operation) MarkInProgress(now time.Time) {
	o.Status = StatusInProgress
	if o.StartedAt == nil {
		startedAt := now
		o.StartedAt = &startedAt
	}
}

// SetProgress updates the progress percentage and status message.
func (o *Operation) SetProgress(progress int, message string) error {
	if progress < 0 || progress > 100 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "progress must be between 0 and 100")
	}
	o.Progress = progress
	if message != "" {
		o.StatusMessage = &message
	}
	return nil
}

// Complete marks the operation finished. A partial completion records that the
// workflow ended with an accepted but incomplete outcome.
func (o *Operation) Complete(result json.RawMessage, partial bool, now time.Time) {
	if partial {
		o.Status = StatusPartiallyCompleted
	} else {
		o.Status = StatusCompleted
	}
	o.Progress = 100
	o.Result = result
	completedAt := now
	o.CompletedAt = &completedAt
}

// Fail marks the operation failed with a human-readable message and code.
func (o *Operation) Fail(message, code string, now time.Time) {
	o.Status = StatusFailed
	o.ErrorMessage = &message
	if code != "" {
		o.ErrorCode = &code
	}
	completedAt := now
	o.CompletedAt = &completedAt
}

// Cancel marks the operation cancelled. Only active operations can be
// cancelled.
func (o *Operation) Cancel(reason string, now time.Time) error {
	if !o.CanBeCancelled() {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "operation can no longer be cancelled")
	}
	o.Status = StatusCancelled
	if reason != "" {
		o.CancelReason = &reason
	}
	completedAt := now
	o.CompletedAt = &completedAt
	return nil
}

// Compensate marks the operation as rolled back after a failure.
func (o *Operation) Compensate(message string, now time.Time) {
	o.Status = StatusCompensated
	if message != "" {
		o.StatusMessage = &message
	}
	completedAt := now
	o.CompletedAt = &completedAt
}
