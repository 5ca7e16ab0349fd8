package app

import (
	"fmt"

	"github.com/allisson/courier/internal/bus"
	outboxRepository "github.com/allisson/courier/internal/outbox/repository"
	outboxUsecase "github.com/allisson/courier/internal/outbox/usecase"
)

// OutboxRepository returns the outbox entry repository based on database driver.
func (c *Container) OutboxRepository() (outboxUsecase.EntryRepository, error) {
	var err error
	c.domains.outboxRepoInit.Do(func() {
		c.domains.outboxRepo, err = c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxRepo"]; exists {
		return nil, storedErr
	}
	return c.domains.outboxRepo, nil
}

// OutboxWriter returns the outbox writer used to stage events transactionally.
func (c *Container) OutboxWriter() (*outboxUsecase.Writer, error) {
	var err error
	c.domains.outboxWriterInit.Do(func() {
		c.domains.outboxWriter, err = c.initOutboxWriter()
		if err != nil {
			c.initErrors["outboxWriter"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxWriter"]; exists {
		return nil, storedErr
	}
	return c.domains.outboxWriter, nil
}

// EventPublisher returns the circuit-breaker protected bus publisher.
func (c *Container) EventPublisher() (*bus.EventPublisher, error) {
	var err error
	c.domains.eventPublisherInit.Do(func() {
		c.domains.eventPublisher, err = c.initEventPublisher()
		if err != nil {
			c.initErrors["eventPublisher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventPublisher"]; exists {
		return nil, storedErr
	}
	return c.domains.eventPublisher, nil
}

// OutboxProcessor returns the outbox polling processor.
func (c *Container) OutboxProcessor() (*outboxUsecase.Processor, error) {
	var err error
	c.domains.outboxProcessorInit.Do(func() {
		c.domains.outboxProcessor, err = c.initOutboxProcessor()
		if err != nil {
			c.initErrors["outboxProcessor"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxProcessor"]; exists {
		return nil, storedErr
	}
	return c.domains.outboxProcessor, nil
}

// initOutboxRepository creates the outbox entry repository based on the database driver.
func (c *Container) initOutboxRepository() (outboxUsecase.EntryRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return outboxRepository.NewMySQLOutboxRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLOutboxRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutboxWriter creates the outbox writer.
func (c *Container) initOutboxWriter() (*outboxUsecase.Writer, error) {
	repo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository: %w", err)
	}
	return outboxUsecase.NewWriter(repo, c.Logger()), nil
}

// initEventPublisher creates the bus publisher used by the outbox processor.
func (c *Container) initEventPublisher() (*bus.EventPublisher, error) {
	messageBus, err := c.Bus()
	if err != nil {
		return nil, fmt.Errorf("failed to get message bus: %w", err)
	}
	return bus.NewEventPublisher(messageBus.Publisher, c.config.BusPublishTimeout), nil
}

// initOutboxProcessor creates the outbox processor.
func (c *Container) initOutboxProcessor() (*outboxUsecase.Processor, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager: %w", err)
	}

	repo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository: %w", err)
	}

	publisher, err := c.EventPublisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get event publisher: %w", err)
	}

	return outboxUsecase.NewProcessor(
		outboxUsecase.Config{
			PollInterval:    c.config.OutboxPollInterval,
			BatchSize:       c.config.OutboxBatchSize,
			MaxRetries:      c.config.OutboxMaxRetries,
			RetryDelays:     c.config.OutboxRetryDelays,
			ProcessingLease: c.config.OutboxProcessingLease,
		},
		txManager,
		repo,
		publisher,
		c.Logger(),
	), nil
}
