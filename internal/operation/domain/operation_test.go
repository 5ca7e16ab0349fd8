package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/courier/internal/errors"
)

func newTestOperation() *Operation {
	chatID := int64(7)
	return NewOperation(uuid.Must(uuid.NewV7()), "message_delivery", 9, &chatID)
}

func TestNewOperation(t *testing.T) {
	op := newTestOperation()

	assert.Equal(t, StatusPending, op.Status)
	assert.Equal(t, 0, op.Progress)
	assert.Equal(t, "message_delivery", op.OperationType)
	require.NotNil(t, op.ChatID)
	assert.Equal(t, int64(7), *op.ChatID)
	assert.True(t, op.IsActive())
	assert.False(t, op.IsCompleted())
	assert.True(t, op.CanBeCancelled())
}

func TestOperation_MarkInProgress(t *testing.T) {
	op := newTestOperation()
	first := time.Now().UTC()

	op.MarkInProgress(first)
	assert.Equal(t, StatusInProgress, op.Status)
	require.NotNil(t, op.StartedAt)
	assert.Equal(t, first, *op.StartedAt)

	// StartedAt is not overwritten by repeated calls
	op.MarkInProgress(first.Add(time.Minute))
	assert.Equal(t, first, *op.StartedAt)
}

func TestOperation_SetProgress(t *testing.T) {
	op := newTestOperation()

	require.NoError(t, op.SetProgress(50, "publishing"))
	assert.Equal(t, 50, op.Progress)
	require.NotNil(t, op.StatusMessage)
	assert.Equal(t, "publishing", *op.StatusMessage)

	assert.ErrorIs(t, op.SetProgress(101, ""), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, op.SetProgress(-1, ""), apperrors.ErrInvalidInput)
}

func TestOperation_Complete(t *testing.T) {
	op := newTestOperation()
	now := time.Now().UTC()

	op.Complete(json.RawMessage(`{"delivered_to_ids":[1,2]}`), false, now)
	assert.Equal(t, StatusCompleted, op.Status)
	assert.Equal(t, 100, op.Progress)
	assert.True(t, op.IsCompleted())
	assert.False(t, op.IsActive())
	require.NotNil(t, op.CompletedAt)
}

func TestOperation_Complete_Partial(t *testing.T) {
	op := newTestOperation()

	op.Complete(nil, true, time.Now().UTC())
	assert.Equal(t, StatusPartiallyCompleted, op.Status)
	assert.True(t, op.IsCompleted())
}

func TestOperation_Fail(t *testing.T) {
	op := newTestOperation()

	op.Fail("save step failed", "save_error", time.Now().UTC())
	assert.Equal(t, StatusFailed, op.Status)
	require.NotNil(t, op.ErrorMessage)
	assert.Equal(t, "save step failed", *op.ErrorMessage)
	require.NotNil(t, op.ErrorCode)
	assert.Equal(t, "save_error", *op.ErrorCode)
	assert.True(t, op.IsCompleted())
	assert.False(t, op.CanBeCancelled())
}

func TestOperation_Cancel(t *testing.T) {
	op := newTestOperation()

	require.NoError(t, op.Cancel("user request", time.Now().UTC()))
	assert.Equal(t, StatusCancelled, op.Status)
	require.NotNil(t, op.CancelReason)
	assert.Equal(t, "user request", *op.CancelReason)

	// Cancelled is a resting state: neither active nor a completion outcome
	assert.False(t, op.IsActive())
	assert.False(t, op.IsCompleted())
}

func TestOperation_Cancel_Terminal(t *testing.T) {
	op := newTestOperation()
	op.Fail("boom", "", time.Now().UTC())

	err := op.Cancel("too late", time.Now().UTC())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, StatusFailed, op.Status)
}

func TestOperation_Compensate(t *testing.T) {
	op := newTestOperation()

	op.Compensate("rolled back message save", time.Now().UTC())
	assert.Equal(t, StatusCompensated, op.Status)
	assert.True(t, op.IsCompleted())
	require.NotNil(t, op.StatusMessage)
}
