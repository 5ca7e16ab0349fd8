// Package repository provides data persistence implementations for processed-event records.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/allisson/courier/internal/consumer/domain"
	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
)

// PostgreSQLProcessedEventRepository handles processed-event persistence for PostgreSQL.
// Uses transaction support via database.GetTx().
type PostgreSQLProcessedEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLProcessedEventRepository creates a new PostgreSQLProcessedEventRepository.
func NewPostgreSQLProcessedEventRepository(db *sql.DB) *PostgreSQLProcessedEventRepository {
	return &PostgreSQLProcessedEventRepository{db: db}
}

// Create inserts a processed-event record. Returns ErrConflict when the
// (event_id, event_type) pair was already recorded.
func (r *PostgreSQLProcessedEventRepository) Create(ctx context.Context, record *domain.ProcessedEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO processed_events (event_id, event_type, processed_at) VALUES ($1, $2, $3)`

	_, err := querier.ExecContext(ctx, query, record.EventID, record.EventType, record.ProcessedAt)
	if err != nil {
		// Check for unique violation (PostgreSQL error code 23505)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return apperrors.Wrap(err, "failed to create processed event")
	}
	return nil
}

// Exists reports whether the (event_id, event_type) pair was already recorded.
func (r *PostgreSQLProcessedEventRepository) Exists(ctx context.Context, eventID, eventType string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1 AND event_type = $2)`

	var exists bool
	if err := querier.QueryRowContext(ctx, query, eventID, eventType).Scan(&exists); err != nil {
		return false, apperrors.Wrap(err, "failed to check processed event")
	}
	return exists, nil
}
