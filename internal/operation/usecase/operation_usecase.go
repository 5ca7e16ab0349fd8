package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/operation/domain"
)

// operationUseCase implements the OperationUseCase interface. Repository calls
// join the transaction carried by the context when one is present, so ledger
// updates driven by a workflow transition commit with that transition.
type operationUseCase struct {
	operationRepo OperationRepository
	logger        *slog.Logger
}

// NewOperationUseCase creates a new OperationUseCase.
func NewOperationUseCase(operationRepo OperationRepository, logger *slog.Logger) OperationUseCase {
	return &operationUseCase{
		operationRepo: operationRepo,
		logger:        logger,
	}
}

// Start creates a pending operation for a new workflow run.
func (u *operationUseCase) Start(
	ctx context.Context,
	correlationID uuid.UUID,
	operationType string,
	userID int64,
	chatID *int64,
	operationData json.RawMessage,
) (*domain.Operation, error) {
	op := domain.NewOperation(correlationID, operationType, userID, chatID)
	op.OperationData = operationData

	if err := u.operationRepo.Create(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// UpdateProgress records progress against an operation. Updates after a
// terminal status are applied as informational corrections; the status is not
// reset.
func (u *operationUseCase) UpdateProgress(ctx context.Context, correlationID uuid.UUID, progress int, message string) error {
	op, err := u.operationRepo.Get(ctx, correlationID)
	if err != nil {
		return err
	}

	if op.Status == domain.StatusPending {
		op.MarkInProgress(time.Now().UTC())
	}
	if err := op.SetProgress(progress, message); err != nil {
		return err
	}
	return u.operationRepo.Update(ctx, op)
}

// Complete marks the operation finished.
func (u *operationUseCase) Complete(ctx context.Context, correlationID uuid.UUID, result json.RawMessage, partial bool) error {
	op, err := u.operationRepo.Get(ctx, correlationID)
	if err != nil {
		return err
	}

	op.Complete(result, partial, time.Now().UTC())
	return u.operationRepo.Update(ctx, op)
}

// Fail marks the operation failed.
func (u *operationUseCase) Fail(ctx context.Context, correlationID uuid.UUID, message, code string) error {
	op, err := u.operationRepo.Get(ctx, correlationID)
	if err != nil {
		return err
	}

	op.Fail(message, code, time.Now().UTC())
	return u.operationRepo.Update(ctx, op)
}

// Cancel marks an active operation cancelled.
func (u *operationUseCase) Cancel(ctx context.Context, correlationID uuid.UUID, reason string) error {
	op, err := u.operationRepo.Get(ctx, correlationID)
	if err != nil {
		return err
	}

	if err := op.Cancel(reason, time.Now().UTC()); err != nil {
		return err
	}
	return u.operationRepo.Update(ctx, op)
}

// Compensate marks the operation rolled back.
func (u *operationUseCase) Compensate(ctx context.Context, correlationID uuid.UUID, message string) error {
	op, err := u.operationRepo.Get(ctx, correlationID)
	if err != nil {
		return err
	}

	op.Compensate(message, time.Now().UTC())
	return u.operationRepo.Update(ctx, op)
}

// Get retrieves an operation by correlation id.
func (u *operationUseCase) Get(ctx context.Context, correlationID uuid.UUID) (*domain.Operation, error) {
	return u.operationRepo.Get(ctx, correlationID)
}

// ListByChat retrieves operations attached to a chat.
func (u *operationUseCase) ListByChat(ctx context.Context, chatID int64) ([]*domain.Operation, error) {
	return u.operationRepo.ListByChat(ctx, chatID)
}

// ListByUser retrieves a page of a user's operations plus the total count.
func (u *operationUseCase) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*domain.Operation, int, error) {
	operations, err := u.operationRepo.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	count, err := u.operationRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return operations, count, nil
}
