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

// MySQLSagaRepository handles saga state persistence for MySQL.
// Uses transaction support via database.GetTx().
type MySQLSagaRepository struct {
	db *sql.DB
}

// NewMySQLSagaRepository creates a new MySQLSagaRepository.
func NewMySQLSagaRepository(db *sql.DB) *MySQLSagaRepository {
	return &MySQLSagaRepository{db: db}
}

// Create inserts a new saga state row.
func (r *MySQLSagaRepository) Create(ctx context.Context, state *domain.SagaState) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO saga_states (correlation_id, saga_type, current_state, data, timeout_token_id,
				  created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, NOW(6), NOW(6))`

	_, err := querier.ExecContext(ctx, query, state.CorrelationID, state.SagaType, state.CurrentState,
		[]byte(state.Data), state.TimeoutTokenID)
	if err != nil {
		return apperrors.Wrap(err, "failed to create saga state")
	}
	return nil
}

// Get retrieves a saga state by correlation id.
func (r *MySQLSagaRepository) Get(ctx context.Context, correlationID uuid.UUID) (*domain.SagaState, error) {
	return r.get(ctx, correlationID, false)
}

// GetForUpdate retrieves a saga state by correlation id with a row lock, so
// concurrent dispatches for the same workflow serialize. Must run inside a
// transaction to be effective.
func (r *MySQLSagaRepository) GetForUpdate(
	ctx context.Context,
	correlationID uuid.UUID,
) (*domain.SagaState, error) {
	return r.get(ctx, correlationID, true)
}

func (r *MySQLSagaRepository) get(
	ctx context.Context,
	correlationID uuid.UUID,
	forUpdate bool,
) (*domain.SagaState, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT correlation_id, saga_type, current_state, data, timeout_token_id, created_at, updated_at
			  FROM saga_states WHERE correlation_id = ?`
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
func (r *MySQLSagaRepository) Update(ctx context.Context, state *domain.SagaState) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE saga_states
			  SET current_state = ?, data = ?, timeout_token_id = ?, updated_at = NOW(6)
			  WHERE correlation_id = ?`

	_, err := querier.ExecContext(ctx, query, state.CurrentState, []byte(state.Data),
		state.TimeoutTokenID, state.CorrelationID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update saga state")
	}
	return nil
}
