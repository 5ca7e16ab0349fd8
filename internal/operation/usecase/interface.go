// Package usecase implements the operation tracking ledger: the mutating
// surface driven by workflow transitions and the read surface polled by
// clients waiting on a correlation id.
package usecase

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/operation/domain"
)

// OperationUseCase defines the operation ledger operations.
type OperationUseCase interface {
	// Start creates a pending operation for a new workflow run.
	Start(ctx context.Context, correlationID uuid.UUID, operationType string, userID int64, chatID *int64, operationData json.RawMessage) (*domain.Operation, error)

	// UpdateProgress records progress. A pending operation moves to
	// in_progress on its first progress update.
	UpdateProgress(ctx context.Context, correlationID uuid.UUID, progress int, message string) error

	// Complete marks the operation finished, optionally as a partial outcome.
	Complete(ctx context.Context, correlationID uuid.UUID, result json.RawMessage, partial bool) error

	// Fail marks the operation failed with a message and machine-readable code.
	Fail(ctx context.Context, correlationID uuid.UUID, message, code string) error

	// Cancel marks an active operation cancelled.
	Cancel(ctx context.Context, correlationID uuid.UUID, reason string) error

	// Compensate marks the operation rolled back after a failure.
	Compensate(ctx context.Context, correlationID uuid.UUID, message string) error

	// Get retrieves an operation by correlation id.
	Get(ctx context.Context, correlationID uuid.UUID) (*domain.Operation, error)

	// ListByChat retrieves operations attached to a chat.
	ListByChat(ctx context.Context, chatID int64) ([]*domain.Operation, error)

	// ListByUser retrieves a page of a user's operations plus the total count.
	ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*domain.Operation, int, error)
}

// OperationRepository defines operation ledger persistence operations.
type OperationRepository interface {
	Create(ctx context.Context, op *domain.Operation) error
	Get(ctx context.Context, correlationID uuid.UUID) (*domain.Operation, error)
	Update(ctx context.Context, op *domain.Operation) error
	ListByChat(ctx context.Context, chatID int64) ([]*domain.Operation, error)
	ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*domain.Operation, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
}
