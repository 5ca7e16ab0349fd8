// Package repository provides data persistence implementations for chat messages.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/message/domain"
)

// PostgreSQLMessageRepository handles chat message persistence for PostgreSQL.
// Uses transaction support via database.GetTx().
type PostgreSQLMessageRepository struct {
	db *sql.DB
}

// NewPostgreSQLMessageRepository creates a new PostgreSQLMessageRepository.
func NewPostgreSQLMessageRepository(db *sql.DB) *PostgreSQLMessageRepository {
	return &PostgreSQLMessageRepository{db: db}
}

// Create inserts a chat message. When called inside a transaction carried by
// the context, the insert shares the caller's commit boundary.
func (r *PostgreSQLMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO messages (message_id, chat_id, sender_id, body, created_at)
			  VALUES ($1, $2, $3, $4, NOW())`

	_, err := querier.ExecContext(ctx, query,
		message.MessageID, message.ChatID, message.SenderID, message.Body)
	if err != nil {
		return apperrors.Wrap(err, "failed to create message")
	}
	return nil
}

// Get retrieves a chat message by id.
func (r *PostgreSQLMessageRepository) Get(ctx context.Context, messageID int64) (*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT message_id, chat_id, sender_id, body, created_at
			  FROM messages WHERE message_id = $1`

	var message domain.Message
	err := querier.QueryRowContext(ctx, query, messageID).Scan(
		&message.MessageID, &message.ChatID, &message.SenderID, &message.Body, &message.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get message")
	}
	return &message, nil
}

// ListByChat retrieves the most recent messages of a chat, newest first.
func (r *PostgreSQLMessageRepository) ListByChat(ctx context.Context, chatID int64, limit int) ([]*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT message_id, chat_id, sender_id, body, created_at
			  FROM messages WHERE chat_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list messages")
	}
	defer rows.Close() //nolint:errcheck

	var messages []*domain.Message
	for rows.Next() {
		var message domain.Message
		err := rows.Scan(&message.MessageID, &message.ChatID, &message.SenderID,
			&message.Body, &message.CreatedAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan message")
		}
		messages = append(messages, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate messages")
	}
	return messages, nil
}
