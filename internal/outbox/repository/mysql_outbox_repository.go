package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/outbox/domain"
)

// MySQLOutboxRepository handles outbox entry persistence for MySQL.
// Uses transaction support via database.GetTx().
type MySQLOutboxRepository struct {
	db *sql.DB
}

// NewMySQLOutboxRepository creates a new MySQLOutboxRepository.
func NewMySQLOutboxRepository(db *sql.DB) *MySQLOutboxRepository {
	return &MySQLOutboxRepository{db: db}
}

// Create inserts a new outbox entry. When called inside a transaction carried
// by the context, the insert shares the caller's commit boundary.
func (r *MySQLOutboxRepository) Create(ctx context.Context, entry *domain.Entry) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_entries (id, event_type, payload, status, retry_count, next_retry_at,
				  processed_at, last_error, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW(6), NOW(6))`

	_, err := querier.ExecContext(ctx, query, entry.ID, entry.EventType, entry.Payload, entry.Status,
		entry.RetryCount, entry.NextRetryAt, entry.ProcessedAt, entry.LastError)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox entry")
	}
	return nil
}

// Get retrieves an outbox entry by id.
func (r *MySQLOutboxRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, event_type, payload, status, retry_count, next_retry_at, processed_at,
				  last_error, created_at, updated_at
			  FROM outbox_entries WHERE id = ?`

	var entry domain.Entry
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&entry.ID, &entry.EventType, &entry.Payload, &entry.Status, &entry.RetryCount,
		&entry.NextRetryAt, &entry.ProcessedAt, &entry.LastError, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox entry")
	}
	return &entry, nil
}

// ClaimBatch moves up to limit due pending entries to processing and returns
// them, oldest first. MySQL has no UPDATE ... RETURNING, so claiming runs as a
// locking select followed by an update; the caller must wrap it in a
// transaction so both statements commit together.
func (r *MySQLOutboxRepository) ClaimBatch(ctx context.Context, limit int) ([]*domain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	selectQuery := `SELECT id, event_type, payload, status, retry_count, next_retry_at, processed_at,
				  last_error, created_at, updated_at
			  FROM outbox_entries
			  WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= NOW(6))
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, selectQuery, domain.EntryStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to select due outbox entries")
	}
	defer rows.Close() //nolint:errcheck

	var entries []*domain.Entry
	for rows.Next() {
		var entry domain.Entry
		err := rows.Scan(&entry.ID, &entry.EventType, &entry.Payload, &entry.Status, &entry.RetryCount,
			&entry.NextRetryAt, &entry.ProcessedAt, &entry.LastError, &entry.CreatedAt, &entry.UpdatedAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox entry")
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox entries")
	}

	if len(entries) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(entries))
	args := make([]any, 0, len(entries)+1)
	args = append(args, domain.EntryStatusProcessing)
	for i, entry := range entries {
		placeholders[i] = "?"
		args = append(args, entry.ID)
	}

	updateQuery := `UPDATE outbox_entries SET status = ?, updated_at = NOW(6) WHERE id IN (` +
		strings.Join(placeholders, ", ") + `)`

	if _, err := querier.ExecContext(ctx, updateQuery, args...); err != nil {
		return nil, apperrors.Wrap(err, "failed to claim outbox batch")
	}

	for _, entry := range entries {
		entry.Status = domain.EntryStatusProcessing
	}
	return entries, nil
}

// Update persists the mutable fields of an outbox entry.
func (r *MySQLOutboxRepository) Update(ctx context.Context, entry *domain.Entry) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = ?, retry_count = ?, next_retry_at = ?, processed_at = ?,
				  last_error = ?, updated_at = NOW(6)
			  WHERE id = ?`

	_, err := querier.ExecContext(ctx, query, entry.Status, entry.RetryCount, entry.NextRetryAt,
		entry.ProcessedAt, entry.LastError, entry.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox entry")
	}
	return nil
}

// ReclaimExpired returns entries stuck in processing since before cutoff back
// to pending. Covers workers that crashed while holding a claim.
func (r *MySQLOutboxRepository) ReclaimExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = ?, updated_at = NOW(6)
			  WHERE status = ? AND updated_at < ?`

	result, err := querier.ExecContext(ctx, query,
		domain.EntryStatusPending, domain.EntryStatusProcessing, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to reclaim expired outbox entries")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count reclaimed outbox entries")
	}
	return count, nil
}
