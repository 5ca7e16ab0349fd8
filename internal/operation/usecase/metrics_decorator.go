package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/metrics"
	"github.com/allisson/courier/internal/operation/domain"
)

// operationUseCaseWithMetrics decorates OperationUseCase with metrics instrumentation.
type operationUseCaseWithMetrics struct {
	next    OperationUseCase
	metrics metrics.BusinessMetrics
}

// NewOperationUseCaseWithMetrics wraps an OperationUseCase with metrics recording.
func NewOperationUseCaseWithMetrics(useCase OperationUseCase, m metrics.BusinessMetrics) OperationUseCase {
	return &operationUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record reports one ledger call outcome with its duration.
func (u *operationUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	u.metrics.RecordOperation(ctx, "operations", operation, status)
	u.metrics.RecordDuration(ctx, "operations", operation, time.Since(start), status)
}

func (u *operationUseCaseWithMetrics) Start(
	ctx context.Context,
	correlationID uuid.UUID,
	operationType string,
	userID int64,
	chatID *int64,
	operationData json.RawMessage,
) (*domain.Operation, error) {
	start := time.Now()
	op, err := u.next.Start(ctx, correlationID, operationType, userID, chatID, operationData)
	u.record(ctx, "operation_start", start, err)
	return op, err
}

func (u *operationUseCaseWithMetrics) UpdateProgress(ctx context.Context, correlationID uuid.UUID, progress int, message string) error {
	start := time.Now()
	err := u.next.UpdateProgress(ctx, correlationID, progress, message)
	u.record(ctx, "operation_update_progress", start, err)
	return err
}

func (u *operationUseCaseWithMetrics) Complete(ctx context.Context, correlationID uuid.UUID, result json.RawMessage, partial bool) error {
	start := time.Now()
	err := u.next.Complete(ctx, correlationID, result, partial)
	u.record(ctx, "operation_complete", start, err)
	return err
}

func (u *operationUseCaseWithMetrics) Fail(ctx context.Context, correlationID uuid.UUID, message, code string) error {
	start := time.Now()
	err := u.next.Fail(ctx, correlationID, message, code)
	u.record(ctx, "operation_fail", start, err)
	return err
}

func (u *operationUseCaseWithMetrics) Cancel(ctx context.Context, correlationID uuid.UUID, reason string) error {
	start := time.Now()
	err := u.next.Cancel(ctx, correlationID, reason)
	u.record(ctx, "operation_cancel", start, err)
	return err
}

func (u *operationUseCaseWithMetrics) Compensate(ctx context.Context, correlationID uuid.UUID, message string) error {
	start := time.Now()
	err := u.next.Compensate(ctx, correlationID, message)
	u.record(ctx, "operation_compensate", start, err)
	return err
}

func (u *operationUseCaseWithMetrics) Get(ctx context.Context, correlationID uuid.UUID) (*domain.Operation, error) {
	start := time.Now()
	op, err := u.next.Get(ctx, correlationID)
	u.record(ctx, "operation_get", start, err)
	return op, err
}

func (u *operationUseCaseWithMetrics) ListByChat(ctx context.Context, chatID int64) ([]*domain.Operation, error) {
	start := time.Now()
	operations, err := u.next.ListByChat(ctx, chatID)
	u.record(ctx, "operation_list_by_chat", start, err)
	return operations, err
}

func (u *operationUseCaseWithMetrics) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*domain.Operation, int, error) {
	start := time.Now()
	operations, count, err := u.next.ListByUser(ctx, userID, offset, limit)
	u.record(ctx, "operation_list_by_user", start, err)
	return operations, count, err
}
