package app

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/allisson/courier/internal/bus"
	consumerRepository "github.com/allisson/courier/internal/consumer/repository"
	consumerUsecase "github.com/allisson/courier/internal/consumer/usecase"
	deliveryDomain "github.com/allisson/courier/internal/delivery/domain"
	"github.com/allisson/courier/internal/event"
	operationUsecase "github.com/allisson/courier/internal/operation/usecase"
	sagaRepository "github.com/allisson/courier/internal/saga/repository"
	sagaUsecase "github.com/allisson/courier/internal/saga/usecase"
)

// SagaRepository returns the workflow state repository based on database driver.
func (c *Container) SagaRepository() (sagaUsecase.StateRepository, error) {
	var err error
	c.domains.sagaRepoInit.Do(func() {
		c.domains.sagaRepo, err = c.initSagaRepository()
		if err != nil {
			c.initErrors["sagaRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sagaRepo"]; exists {
		return nil, storedErr
	}
	return c.domains.sagaRepo, nil
}

// ProcessedEventRepository returns the processed-event repository based on database driver.
func (c *Container) ProcessedEventRepository() (consumerUsecase.ProcessedEventRepository, error) {
	var err error
	c.domains.processedEventRepoInit.Do(func() {
		c.domains.processedEventRepo, err = c.initProcessedEventRepository()
		if err != nil {
			c.initErrors["processedEventRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["processedEventRepo"]; exists {
		return nil, storedErr
	}
	return c.domains.processedEventRepo, nil
}

// TimeoutScheduler returns the in-process timeout scheduler.
func (c *Container) TimeoutScheduler() *sagaUsecase.TimerScheduler {
	c.domains.timeoutSchedulerInit.Do(func() {
		c.domains.timeoutScheduler = sagaUsecase.NewTimerScheduler(c.Logger())
	})
	return c.domains.timeoutScheduler
}

// WorkflowEngine returns the message delivery workflow engine.
func (c *Container) WorkflowEngine() (*sagaUsecase.Engine, error) {
	var err error
	c.domains.workflowEngineInit.Do(func() {
		c.domains.workflowEngine, err = c.initWorkflowEngine()
		if err != nil {
			c.initErrors["workflowEngine"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["workflowEngine"]; exists {
		return nil, storedErr
	}
	return c.domains.workflowEngine, nil
}

// IdempotentConsumer returns the exactly-once event consumer wrapper.
func (c *Container) IdempotentConsumer() (*consumerUsecase.IdempotentConsumer, error) {
	var err error
	c.domains.idempotentConsumerInit.Do(func() {
		c.domains.idempotentConsumer, err = c.initIdempotentConsumer()
		if err != nil {
			c.initErrors["idempotentConsumer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["idempotentConsumer"]; exists {
		return nil, storedErr
	}
	return c.domains.idempotentConsumer, nil
}

// EventRegistry returns the registry binding event types to their handlers.
func (c *Container) EventRegistry() (*event.Registry, error) {
	var err error
	c.domains.eventRegistryInit.Do(func() {
		c.domains.eventRegistry, err = c.initEventRegistry()
		if err != nil {
			c.initErrors["eventRegistry"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventRegistry"]; exists {
		return nil, storedErr
	}
	return c.domains.eventRegistry, nil
}

// BusRouter returns the watermill router consuming registered event topics.
func (c *Container) BusRouter() (*message.Router, error) {
	var err error
	c.domains.busRouterInit.Do(func() {
		c.domains.busRouter, err = c.initBusRouter()
		if err != nil {
			c.initErrors["busRouter"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["busRouter"]; exists {
		return nil, storedErr
	}
	return c.domains.busRouter, nil
}

// initSagaRepository creates the workflow state repository based on the database driver.
func (c *Container) initSagaRepository() (sagaUsecase.StateRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for saga repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return sagaRepository.NewMySQLSagaRepository(db), nil
	case "postgres":
		return sagaRepository.NewPostgreSQLSagaRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initProcessedEventRepository creates the processed-event repository based on the database driver.
func (c *Container) initProcessedEventRepository() (consumerUsecase.ProcessedEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for processed-event repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return consumerRepository.NewMySQLProcessedEventRepository(db), nil
	case "postgres":
		return consumerRepository.NewPostgreSQLProcessedEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initWorkflowEngine creates the saga engine running the message delivery workflow.
func (c *Container) initWorkflowEngine() (*sagaUsecase.Engine, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager: %w", err)
	}

	stateRepo, err := c.SagaRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get saga repository: %w", err)
	}

	outboxWriter, err := c.OutboxWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox writer: %w", err)
	}

	operations, err := c.OperationUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get operation use case: %w", err)
	}

	definition := deliveryDomain.NewDefinition(c.config.DeliveryConfirmationTimeout)
	hook := operationUsecase.NewDeliveryTrackingHook(operations, c.Logger())

	return sagaUsecase.NewEngine(
		definition,
		txManager,
		stateRepo,
		outboxWriter,
		c.TimeoutScheduler(),
		hook,
		c.Logger(),
	), nil
}

// initIdempotentConsumer creates the exactly-once consumer wrapper.
func (c *Container) initIdempotentConsumer() (*consumerUsecase.IdempotentConsumer, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager: %w", err)
	}

	repo, err := c.ProcessedEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get processed-event repository: %w", err)
	}

	return consumerUsecase.NewIdempotentConsumer(
		consumerUsecase.Config{StalenessWindow: c.config.ConsumerStalenessWindow},
		txManager,
		repo,
		c.Logger(),
	), nil
}

// initEventRegistry builds the registry: step commands go to the message step
// handlers, workflow events go to the saga engine. The in-process timeout
// event never crosses the bus, so it has no registry entry.
func (c *Container) initEventRegistry() (*event.Registry, error) {
	registry := event.NewRegistry()

	stepHandlers, err := c.StepHandlers()
	if err != nil {
		return nil, fmt.Errorf("failed to get step handlers: %w", err)
	}
	if err := stepHandlers.Register(registry); err != nil {
		return nil, fmt.Errorf("failed to register step handlers: %w", err)
	}

	engine, err := c.WorkflowEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow engine: %w", err)
	}

	workflowEvents := []string{
		deliveryDomain.EventDeliveryStarted,
		deliveryDomain.EventMessageSaved,
		deliveryDomain.EventMessagePublished,
		deliveryDomain.EventDeliveredToUser,
		deliveryDomain.EventDeliveryStatusChecked,
		deliveryDomain.EventDeliveryFailed,
	}
	for _, eventType := range workflowEvents {
		if err := registry.Register(eventType, engine.Dispatch); err != nil {
			return nil, fmt.Errorf("failed to register workflow event %s: %w", eventType, err)
		}
	}

	return registry, nil
}

// initBusRouter creates the watermill router, dispatching every consumed event
// through the idempotent consumer into the registry.
func (c *Container) initBusRouter() (*message.Router, error) {
	messageBus, err := c.Bus()
	if err != nil {
		return nil, fmt.Errorf("failed to get message bus: %w", err)
	}

	registry, err := c.EventRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to get event registry: %w", err)
	}

	consumer, err := c.IdempotentConsumer()
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotent consumer: %w", err)
	}

	dispatch := consumer.Wrap(func(ctx context.Context, env *event.Envelope) error {
		handler, ok := registry.Handler(env.EventType)
		if !ok {
			return nil
		}
		return handler(ctx, env)
	})

	return bus.NewRouter(messageBus.Subscriber, registry.EventTypes(), bus.DispatchFunc(dispatch), c.Logger())
}
