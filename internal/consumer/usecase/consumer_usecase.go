// Package usecase implements the idempotent-consumer wrapper that guards event
// handlers against redelivery, duplicates and stale events.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/courier/internal/consumer/domain"
	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/event"
)

// Config holds idempotent consumer configuration
type Config struct {
	StalenessWindow time.Duration
}

// ProcessedEventRepository defines processed-event repository operations
type ProcessedEventRepository interface {
	Create(ctx context.Context, record *domain.ProcessedEvent) error
	Exists(ctx context.Context, eventID, eventType string) (bool, error)
}

// IdempotentConsumer wraps event handlers so each event is handled at most
// once: a handler run and its processed-event record share one transaction,
// and duplicates or stale events are acknowledged without running the handler.
type IdempotentConsumer struct {
	config    Config
	txManager database.TxManager
	repo      ProcessedEventRepository
	logger    *slog.Logger
}

// NewIdempotentConsumer creates a new IdempotentConsumer
func NewIdempotentConsumer(
	config Config,
	txManager database.TxManager,
	repo ProcessedEventRepository,
	logger *slog.Logger,
) *IdempotentConsumer {
	return &IdempotentConsumer{
		config:    config,
		txManager: txManager,
		repo:      repo,
		logger:    logger,
	}
}

// Wrap returns a handler that runs the given handler at most once per event.
// A returned error means the handler failed and no record was written, so the
// bus redelivers; duplicates and stale events return nil to acknowledge.
func (c *IdempotentConsumer) Wrap(handler event.HandlerFunc) event.HandlerFunc {
	return func(ctx context.Context, env *event.Envelope) error {
		eventID := domain.EventID(env)

		if domain.IsStale(env.OccurredAt, c.config.StalenessWindow, time.Now()) {
			if c.logger != nil {
				c.logger.Warn("dropping stale event",
					slog.String("event_id", eventID),
					slog.String("event_type", env.EventType),
					slog.Time("occurred_at", env.OccurredAt),
				)
			}
			return nil
		}

		exists, err := c.repo.Exists(ctx, eventID, env.EventType)
		if err != nil {
			return err
		}
		if exists {
			if c.logger != nil {
				c.logger.Debug("skipping already processed event",
					slog.String("event_id", eventID),
					slog.String("event_type", env.EventType),
				)
			}
			return nil
		}

		return c.txManager.WithTx(ctx, func(ctx context.Context) error {
			if err := handler(ctx, env); err != nil {
				return err
			}

			record := domain.NewProcessedEvent(env, time.Now())
			if err := c.repo.Create(ctx, record); err != nil {
				// A concurrent delivery won the race. Returning the conflict
				// rolls this handler run back; the redelivery is then skipped
				// by the existence check.
				if apperrors.Is(err, apperrors.ErrConflict) && c.logger != nil {
					c.logger.Debug("concurrent duplicate delivery",
						slog.String("event_id", eventID),
						slog.String("event_type", env.EventType),
					)
				}
				return err
			}
			return nil
		})
	}
}
