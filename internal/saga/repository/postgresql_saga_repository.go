// Package repository provides data persistence implementations for saga states.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/saga/domain"
)

// PostgreSQLSagaRepository handles saga state persistence for PostgreSQL.
// Uses transaction support via database.GetTx().
type PostgreSQLSagaRepository struct {
	db *sql.DB
}

// NewPostgreSQLSagaRepository creates a new PostgreSQLSagaRepository.
func NewPostgreSQLSagaRepository(db *sql.DB) *PostgreSQLSagaRepository {
	return &PostgreSQLSagaRepository{db: db}
}

// Create inserts a new saga state row.
func (r *PostgreSQLSagaRepository) Create(ctx context.Context, state *domain.SagaState) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO saga_states (correlation_id, saga_type, current_state, data, timeout_token_id,
				  created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query, state.CorrelationID, state.SagaType, state.CurrentState,
		[]byte(state.Data), state.TimeoutTokenID)
	if err != nil {
		return apperrors.Wrap(err, "failed to create saga state")
	}
	return nil
}

// Get retrieves a saga state by correlation id.
func (r *PostgreSQLSagaRepository) Get(ctx context.Context, correlationID uuid.UUID) (*domain.SagaState, error) {
	return r.get(ctx, correlationID, false)
}

// GetForUpdate retrieves a saga state by correlation id with a row lock, so
// concurrent dispatches for the same workflow serialize. Must run inside a
// transaction to be effective.
func (r *PostgreSQLSagaRepository) GetForUpdate(
	ctx context.Context,
	correlationID uuid.UUID,
) (*domain.SagaState, error) {
	return r.get(ctx, correlationID, true)
}

func (r *PostgreSQLSagaRepository) get(
	ctx context.Context,
	correlationID uuid.UUID,
	forUpdate bool,
) (*domain.SagaState, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT correlation_id, saga_type, current_state, data, timeout_token_id, created_at, updated_at
			  FROM saga_states WHERE correlation_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var state domain.SagaState
	var data []byte
	err := querier.QueryRowContext(ctx, query, correlationID).Scan(
		&state.CorrelationID, &state.SagaType, &state.CurrentState, &data,
		&state.TimeoutTokenID, &state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get saga state")
	}
	state.Data = data
	return &state, nil
}

// Update persists the mutable fields of a saga state.
func (r *PostgreSQLSagaRepository) Update(ctx context.Context, state *domain.SagaState) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE saga_states
			  SET current_state = $1, data = $2, timeout_token_id = $3, updated_at = NOW()
			  WHERE correlation_id = $4`

	_, err := querier.ExecContext(ctx, query, state.CurrentState, []byte(state.Data),
		state.TimeoutTokenID, state.CorrelationID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update saga state")
	}
	return nil
}
