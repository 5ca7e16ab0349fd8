package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/allisson/courier/internal/consumer/domain"
	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
)

// MySQLProcessedEventRepository handles processed-event persistence for MySQL.
// Uses transaction support via database.GetTx().
type MySQLProcessedEventRepository struct {
	db *sql.DB
}

// NewMySQLProcessedEventRepository creates a new MySQLProcessedEventRepository.
func NewMySQLProcessedEventRepository(db *sql.DB) *MySQLProcessedEventRepository {
	return &MySQLProcessedEventRepository{db: db}
}

// Create inserts a processed-event record. Returns ErrConflict when the
// (event_id, event_type) pair was already recorded.
func (r *MySQLProcessedEventRepository) Create(ctx context.Context, record *domain.ProcessedEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO processed_events (event_id, event_type, processed_at) VALUES (?, ?, ?)`

	_, err := querier.ExecContext(ctx, query, record.EventID, record.EventType, record.ProcessedAt)
	if err != nil {
		// Check for duplicate entry error (MySQL error number 1062)
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return apperrors.ErrConflict
		}
		return apperrors.Wrap(err, "failed to create processed event")
	}
	return nil
}

// Exists reports whether the (event_id, event_type) pair was already recorded.
func (r *MySQLProcessedEventRepository) Exists(ctx context.Context, eventID, eventType string) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = ? AND event_type = ?)`

	var exists bool
	if err := querier.QueryRowContext(ctx, query, eventID, eventType).Scan(&exists); err != nil {
		return false, apperrors.Wrap(err, "failed to check processed event")
	}
	return exists, nil
}
