package app

import (
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/allisson/courier/internal/bus"
	consumerUsecase "github.com/allisson/courier/internal/consumer/usecase"
	"github.com/allisson/courier/internal/event"
	messageHTTP "github.com/allisson/courier/internal/message/http"
	messageUsecase "github.com/allisson/courier/internal/message/usecase"
	operationHTTP "github.com/allisson/courier/internal/operation/http"
	operationUsecase "github.com/allisson/courier/internal/operation/usecase"
	outboxUsecase "github.com/allisson/courier/internal/outbox/usecase"
	sagaUsecase "github.com/allisson/courier/internal/saga/usecase"
)

// domainComponents groups the lazily initialized domain-level components of
// the container. The init fields mirror the sync.Once pattern used for the
// infrastructure components in di.go.
type domainComponents struct {
	// Outbox
	outboxRepo          outboxUsecase.EntryRepository
	outboxWriter        *outboxUsecase.Writer
	outboxProcessor     *outboxUsecase.Processor
	eventPublisher      *bus.EventPublisher
	outboxRepoInit      sync.Once
	outboxWriterInit    sync.Once
	outboxProcessorInit sync.Once
	eventPublisherInit  sync.Once

	// Operation ledger
	operationRepo        operationUsecase.OperationRepository
	operationUseCase     operationUsecase.OperationUseCase
	operationHandler     *operationHTTP.OperationHandler
	operationRepoInit    sync.Once
	operationUseCaseInit sync.Once
	operationHandlerInit sync.Once

	// Messages
	messageRepo        messageUsecase.MessageRepository
	stepHandlers       *messageUsecase.StepHandlers
	messageSender      *messageUsecase.Sender
	messageReader      *messageUsecase.Reader
	messageHandler     *messageHTTP.MessageHandler
	messageRepoInit    sync.Once
	stepHandlersInit   sync.Once
	messageSenderInit  sync.Once
	messageReaderInit  sync.Once
	messageHandlerInit sync.Once

	// Workflow
	sagaRepo               sagaUsecase.StateRepository
	processedEventRepo     consumerUsecase.ProcessedEventRepository
	timeoutScheduler       *sagaUsecase.TimerScheduler
	workflowEngine         *sagaUsecase.Engine
	idempotentConsumer     *consumerUsecase.IdempotentConsumer
	eventRegistry          *event.Registry
	busRouter              *message.Router
	sagaRepoInit           sync.Once
	processedEventRepoInit sync.Once
	timeoutSchedulerInit   sync.Once
	workflowEngineInit     sync.Once
	idempotentConsumerInit sync.Once
	eventRegistryInit      sync.Once
	busRouterInit          sync.Once
}
