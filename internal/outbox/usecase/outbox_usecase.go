// Package usecase implements the outbox business logic: staging events next to
// business writes and relaying staged events to the message bus.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/courier/internal/database"
	"github.com/allisson/courier/internal/event"
	"github.com/allisson/courier/internal/outbox/domain"
)

// Config holds outbox processor configuration
type Config struct {
	PollInterval    time.Duration
	BatchSize       int
	MaxRetries      int
	RetryDelays     []time.Duration
	ProcessingLease time.Duration
}

// EntryRepository defines outbox entry repository operations
type EntryRepository interface {
	Create(ctx context.Context, entry *domain.Entry) error
	ClaimBatch(ctx context.Context, limit int) ([]*domain.Entry, error)
	Update(ctx context.Context, entry *domain.Entry) error
	ReclaimExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventPublisher publishes event envelopes to the message bus
type EventPublisher interface {
	Publish(ctx context.Context, env *event.Envelope) error
}

// Writer stages event envelopes in the outbox table. Callers invoke CreateEvent
// inside the same transaction as their business write so the event and the
// state change commit or roll back together.
type Writer struct {
	entryRepo EntryRepository
	logger    *slog.Logger
}

// NewWriter creates a new Writer
func NewWriter(entryRepo EntryRepository, logger *slog.Logger) *Writer {
	return &Writer{
		entryRepo: entryRepo,
		logger:    logger,
	}
}

// CreateEvent stages an envelope as a pending outbox entry. The insert joins
// the transaction carried by ctx when one is present.
func (w *Writer) CreateEvent(ctx context.Context, env *event.Envelope) error {
	entry, err := domain.NewEntry(env)
	if err != nil {
		return err
	}

	if !database.HasTx(ctx) && w.logger != nil {
		w.logger.Warn("creating outbox entry outside a transaction",
			slog.String("event_id", env.ID.String()),
			slog.String("event_type", env.EventType),
		)
	}

	return w.entryRepo.Create(ctx, entry)
}

// Processor polls the outbox table and relays due entries to the message bus.
type Processor struct {
	config    Config
	txManager database.TxManager
	entryRepo EntryRepository
	publisher EventPublisher
	logger    *slog.Logger
}

// NewProcessor creates a new Processor
func NewProcessor(
	config Config,
	txManager database.TxManager,
	entryRepo EntryRepository,
	publisher EventPublisher,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		config:    config,
		txManager: txManager,
		entryRepo: entryRepo,
		publisher: publisher,
		logger:    logger,
	}
}

// Start starts the outbox polling loop
func (p *Processor) Start(ctx context.Context) error {
	if p.logger != nil {
		p.logger.Info("starting outbox processor",
			slog.Duration("poll_interval", p.config.PollInterval),
			slog.Int("batch_size", p.config.BatchSize),
			slog.Int("max_retries", p.config.MaxRetries),
		)
	}

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.logger != nil {
				p.logger.Info("stopping outbox processor")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := p.ProcessBatch(ctx); err != nil {
				if p.logger != nil {
					p.logger.Error("failed to process outbox batch", slog.Any("error", err))
				}
			}
		}
	}
}

// ProcessBatch claims one batch of due entries and relays each one. Claiming
// runs in a short transaction; the per-entry status updates that follow commit
// individually, so a slow or failing entry never holds back the rest of the
// batch and already-recorded outcomes survive a crash mid-batch.
func (p *Processor) ProcessBatch(ctx context.Context) error {
	if err := p.reclaimExpired(ctx); err != nil {
		return err
	}

	var entries []*domain.Entry
	err := p.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		entries, err = p.entryRepo.ClaimBatch(ctx, p.config.BatchSize)
		return err
	})
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	if p.logger != nil {
		p.logger.Info("processing outbox entries", slog.Int("count", len(entries)))
	}

	for _, entry := range entries {
		if err := p.processEntry(ctx, entry); err != nil {
			return err
		}
	}

	return nil
}

// processEntry publishes a single entry and records the outcome. Publish
// failures are absorbed into the entry's retry state; only a failure to
// persist the outcome propagates.
func (p *Processor) processEntry(ctx context.Context, entry *domain.Entry) error {
	env, err := entry.Envelope()
	if err == nil {
		err = p.publisher.Publish(ctx, env)
	}

	now := time.Now()

	if err != nil {
		if p.logger != nil {
			p.logger.Error("failed to publish outbox entry",
				slog.String("entry_id", entry.ID.String()),
				slog.String("event_type", entry.EventType),
				slog.Int("retry_count", entry.RetryCount+1),
				slog.Any("error", err),
			)
		}

		entry.RecordFailure(err, now, p.config.MaxRetries, p.config.RetryDelays)

		if entry.Status == domain.EntryStatusFailed && p.logger != nil {
			p.logger.Error("outbox entry exhausted retries",
				slog.String("entry_id", entry.ID.String()),
				slog.String("event_type", entry.EventType),
				slog.Int("retry_count", entry.RetryCount),
			)
		}

		return p.entryRepo.Update(ctx, entry)
	}

	entry.MarkProcessed(now)

	return p.entryRepo.Update(ctx, entry)
}

// reclaimExpired returns entries whose processing lease expired back to
// pending so a crashed worker's claims are eventually retried.
func (p *Processor) reclaimExpired(ctx context.Context) error {
	cutoff := time.Now().Add(-p.config.ProcessingLease)

	count, err := p.entryRepo.ReclaimExpired(ctx, cutoff)
	if err != nil {
		return err
	}

	if count > 0 && p.logger != nil {
		p.logger.Warn("reclaimed outbox entries with expired leases", slog.Int64("count", count))
	}

	return nil
}
