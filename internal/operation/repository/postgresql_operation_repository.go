// Package repository provides data persistence implementations for the
// operation tracking ledger.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/operation/domain"
)

// PostgreSQLOperationRepository handles operation ledger persistence for
// PostgreSQL. Uses transaction support via database.GetTx().
type PostgreSQLOperationRepository struct {
	db *sql.DB
}

// NewPostgreSQLOperationRepository creates a new PostgreSQLOperationRepository.
func NewPostgreSQLOperationRepository(db *sql.DB) *PostgreSQLOperationRepository {
	return &PostgreSQLOperationRepository{db: db}
}

const postgresOperationColumns = `correlation_id, operation_type, user_id, chat_id, status, progress,
	status_message, operation_data, result, error_message, error_code, cancel_reason,
	created_at, started_at, completed_at, updated_at`

// Create inserts a new operation row. When called inside a transaction carried
// by the context, the insert shares the caller's commit boundary.
func (r *PostgreSQLOperationRepository) Create(ctx context.Context, op *domain.Operation) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO operations (correlation_id, operation_type, user_id, chat_id, status, progress,
				  status_message, operation_data, result, error_message, error_code, cancel_reason,
				  created_at, started_at, completed_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), $13, $14, NOW())`

	_, err := querier.ExecContext(ctx, query,
		op.CorrelationID, op.OperationType, op.UserID, op.ChatID, op.Status, op.Progress,
		op.StatusMessage, nullableJSON(op.OperationData), nullableJSON(op.Result),
		op.ErrorMessage, op.ErrorCode, op.CancelReason, op.StartedAt, op.CompletedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create operation")
	}
	return nil
}

// Get retrieves an operation by correlation id.
func (r *PostgreSQLOperationRepository) Get(ctx context.Context, correlationID uuid.UUID) (*domain.Operation, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresOperationColumns + ` FROM operations WHERE correlation_id = $1`

	op, err := scanOperation(querier.QueryRowContext(ctx, query, correlationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get operation")
	}
	return op, nil
}

// Update persists the mutable fields of an operation.
func (r *PostgreSQLOperationRepository) Update(ctx context.Context, op *domain.Operation) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE operations
			  SET status = $1, progress = $2, status_message = $3, operation_data = $4, result = $5,
				  error_message = $6, error_code = $7, cancel_reason = $8, started_at = $9,
				  completed_at = $10, updated_at = NOW()
			  WHERE correlation_id = $11`

	result, err := querier.ExecContext(ctx, query,
		op.Status, op.Progress, op.StatusMessage, nullableJSON(op.OperationData),
		nullableJSON(op.Result), op.ErrorMessage, op.ErrorCode, op.CancelReason,
		op.StartedAt, op.CompletedAt, op.CorrelationID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update operation")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check operation update")
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ListByChat retrieves operations attached to a chat, newest first.
func (r *PostgreSQLOperationRepository) ListByChat(ctx context.Context, chatID int64) ([]*domain.Operation, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresOperationColumns + `
			  FROM operations WHERE chat_id = $1
			  ORDER BY created_at DESC`

	rows, err := querier.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list operations by chat")
	}
	defer rows.Close() //nolint:errcheck

	return scanOperations(rows)
}

// ListByUser retrieves a page of a user's operation history, newest first.
func (r *PostgreSQLOperationRepository) ListByUser(ctx context.Context, userID int64, offset, limit int) ([]*domain.Operation, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresOperationColumns + `
			  FROM operations WHERE user_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2 OFFSET $3`

	rows, err := querier.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list operations by user")
	}
	defer rows.Close() //nolint:errcheck

	return scanOperations(rows)
}

// CountByUser returns the total number of operations owned by a user.
func (r *PostgreSQLOperationRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	querier := database.GetTx(ctx, r.db)

	var count int
	err := querier.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM operations WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count operations by user")
	}
	return count, nil
}
