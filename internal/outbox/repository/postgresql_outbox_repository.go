// Package repository provides data persistence implementations for outbox entries.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/outbox/domain"
)

// PostgreSQLOutboxRepository handles outbox entry persistence for PostgreSQL.
// Uses transaction support via database.GetTx().
type PostgreSQLOutboxRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxRepository creates a new PostgreSQLOutboxRepository.
func NewPostgreSQLOutboxRepository(db *sql.DB) *PostgreSQLOutboxRepository {
	return &PostgreSQLOutboxRepository{db: db}
}

// Create inserts a new outbox entry. When called inside a transaction carried
// by the context, the insert shares the caller's commit boundary.
func (r *PostgreSQLOutboxRepository) Create(ctx context.Context, entry *domain.Entry) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_entries (id, event_type, payload, status, retry_count, next_retry_at,
				  processed_at, last_error, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query, entry.ID, entry.EventType, entry.Payload, entry.Status,
		entry.RetryCount, entry.NextRetryAt, entry.ProcessedAt, entry.LastError)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox entry")
	}
	return nil
}

// Get retrieves an outbox entry by id.
func (r *PostgreSQLOutboxRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, event_type, payload, status, retry_count, next_retry_at, processed_at,
				  last_error, created_at, updated_at
			  FROM outbox_entries WHERE id = $1`

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

// ClaimBatch atomically moves up to limit due pending entries to processing and
// returns them, oldest first. SKIP LOCKED keeps concurrent processor runs from
// claiming the same rows, so a row is never processed by two workers at once.
func (r *PostgreSQLOutboxRepository) ClaimBatch(ctx context.Context, limit int) ([]*domain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = $1, updated_at = NOW()
			  WHERE id IN (
				  SELECT id FROM outbox_entries
				  WHERE status = $2 AND (next_retry_at IS NULL OR next_retry_at <= NOW())
				  ORDER BY created_at ASC
				  LIMIT $3
				  FOR UPDATE SKIP LOCKED
			  )
			  RETURNING id, event_type, payload, status, retry_count, next_retry_at, processed_at,
				  last_error, created_at, updated_at`

	rows, err := querier.QueryContext(ctx, query,
		domain.EntryStatusProcessing, domain.EntryStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to claim outbox batch")
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

	// RETURNING order is not guaranteed to follow the subquery order.
	sortByCreatedAt(entries)

	return entries, nil
}

// Update persists the mutable fields of an outbox entry.
func (r *PostgreSQLOutboxRepository) Update(ctx context.Context, entry *domain.Entry) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = $1, retry_count = $2, next_retry_at = $3, processed_at = $4,
				  last_error = $5, updated_at = NOW()
			  WHERE id = $6`

	_, err := querier.ExecContext(ctx, query, entry.Status, entry.RetryCount, entry.NextRetryAt,
		entry.ProcessedAt, entry.LastError, entry.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox entry")
	}
	return nil
}

// ReclaimExpired returns entries stuck in processing since before cutoff back
// to pending. Covers workers that crashed while holding a claim.
func (r *PostgreSQLOutboxRepository) ReclaimExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = $1, updated_at = NOW()
			  WHERE status = $2 AND updated_at < $3`

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

// sortByCreatedAt orders entries oldest first for FIFO fairness.
func sortByCreatedAt(entries []*domain.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
