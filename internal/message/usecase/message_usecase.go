// Package usecase implements the message-side steps of a delivery: accepting a
// send request, persisting and encrypting the message, and broadcasting it.
// The step handlers consume the commands emitted by the delivery workflow and
// report back through outbox events.
package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	deliverydomain "github.com/allisson/courier/internal/delivery/domain"
	"github.com/allisson/courier/internal/event"
	"github.com/allisson/courier/internal/message/domain"
	operationdomain "github.com/allisson/courier/internal/operation/domain"
)

// MessageRepository defines chat message persistence operations.
type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	Get(ctx context.Context, messageID int64) (*domain.Message, error)
	ListByChat(ctx context.Context, chatID int64, limit int) ([]*domain.Message, error)
}

// OutboxWriter stages envelopes for publication through the outbox.
type OutboxWriter interface {
	CreateEvent(ctx context.Context, env *event.Envelope) error
}

// ContentKeeper encrypts and decrypts message content. Satisfied by
// *secrets.Keeper from gocloud.dev.
type ContentKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// OperationStarter creates the ledger record tracking a delivery.
type OperationStarter interface {
	Start(ctx context.Context, correlationID uuid.UUID, operationType string, userID int64, chatID *int64, operationData json.RawMessage) (*operationdomain.Operation, error)
}

// StepHandlers implements the save, publish and status-check steps of the
// delivery workflow. Handlers are registered on the worker's event registry
// and run inside the idempotent consumer's transaction, so the business write,
// the staged reply event and the processed-event record commit together.
type StepHandlers struct {
	messageRepo MessageRepository
	outbox      OutboxWriter
	keeper      ContentKeeper
	logger      *slog.Logger
}

// NewStepHandlers creates a new StepHandlers.
func NewStepHandlers(
	messageRepo MessageRepository,
	outbox OutboxWriter,
	keeper ContentKeeper,
	logger *slog.Logger,
) *StepHandlers {
	return &StepHandlers{
		messageRepo: messageRepo,
		outbox:      outbox,
		keeper:      keeper,
		logger:      logger,
	}
}

// Register binds the step handlers to their command topics.
func (h *StepHandlers) Register(registry *event.Registry) error {
	if err := registry.Register(deliverydomain.CommandSaveMessage, h.HandleSaveMessage); err != nil {
		return err
	}
	if err := registry.Register(deliverydomain.CommandPublishMessage, h.HandlePublishMessage); err != nil {
		return err
	}
	return registry.Register(deliverydomain.CommandCheckDeliveryStatus, h.HandleCheckDeliveryStatus)
}

// HandleSaveMessage encrypts the message content and inserts the message row,
// staging message_saved in the same transaction. Business failures that would
// never succeed on redelivery report delivery_failed instead of erroring;
// persistence errors propagate so the bus redelivers.
func (h *StepHandlers) HandleSaveMessage(ctx context.Context, env *event.Envelope) error {
	var cmd deliverydomain.SaveMessageCommand
	if err := env.DecodePayload(&cmd); err != nil {
		return h.reportFailure(ctx, env.CorrelationID, err)
	}

	ciphertext, err := h.keeper.Encrypt(ctx, []byte(cmd.Content))
	if err != nil {
		return h.reportFailure(ctx, env.CorrelationID, err)
	}
	body := base64.StdEncoding.EncodeToString(ciphertext)

	message := domain.NewMessage(cmd.MessageID, cmd.ChatID, cmd.SenderID, body)
	if err := h.messageRepo.Create(ctx, message); err != nil {
		return err
	}

	saved, err := event.NewEnvelope(env.CorrelationID, deliverydomain.EventMessageSaved,
		deliverydomain.MessageSavedPayload{
			MessageID: cmd.MessageID,
			Content:   body,
		})
	if err != nil {
		return err
	}
	return h.outbox.CreateEvent(ctx, saved)
}

// HandlePublishMessage stages the broadcast for the chat's subscribers and the
// message_published confirmation in one transaction. The broadcast rides the
// outbox like every other event, so it is never lost between the workflow
// transition and the bus.
func (h *StepHandlers) HandlePublishMessage(ctx context.Context, env *event.Envelope) error {
	var cmd deliverydomain.PublishMessageCommand
	if err := env.DecodePayload(&cmd); err != nil {
		return h.reportFailure(ctx, env.CorrelationID, err)
	}

	broadcast, err := event.NewEnvelope(env.CorrelationID, domain.EventMessageBroadcast,
		domain.BroadcastPayload{
			MessageID:    cmd.MessageID,
			ChatID:       cmd.ChatID,
			Content:      cmd.Content,
			RecipientIDs: cmd.RecipientIDs,
		})
	if err != nil {
		return err
	}
	if err := h.outbox.CreateEvent(ctx, broadcast); err != nil {
		return err
	}

	published, err := event.NewEnvelope(env.CorrelationID, deliverydomain.EventMessagePublished, nil)
	if err != nil {
		return err
	}
	return h.outbox.CreateEvent(ctx, published)
}

// HandleCheckDeliveryStatus evaluates recipient coverage and reports the
// result back to the workflow.
func (h *StepHandlers) HandleCheckDeliveryStatus(ctx context.Context, env *event.Envelope) error {
	var cmd deliverydomain.CheckDeliveryStatusCommand
	if err := env.DecodePayload(&cmd); err != nil {
		return h.reportFailure(ctx, env.CorrelationID, err)
	}

	delivered := make(map[int64]bool, len(cmd.DeliveredToIDs))
	for _, id := range cmd.DeliveredToIDs {
		delivered[id] = true
	}
	isDeliveredToAll := true
	for _, id := range cmd.RecipientIDs {
		if !delivered[id] {
			isDeliveredToAll = false
			break
		}
	}

	checked, err := event.NewEnvelope(env.CorrelationID, deliverydomain.EventDeliveryStatusChecked,
		deliverydomain.DeliveryStatusCheckedPayload{
			IsDeliveredToAll: isDeliveredToAll,
		})
	if err != nil {
		return err
	}
	return h.outbox.CreateEvent(ctx, checked)
}

// reportFailure stages delivery_failed so the workflow records the failure,
// then acks the command. Staging errors propagate instead, leaving retry to
// the bus.
func (h *StepHandlers) reportFailure(ctx context.Context, correlationID uuid.UUID, cause error) error {
	failed, err := event.NewEnvelope(correlationID, deliverydomain.EventDeliveryFailed,
		deliverydomain.DeliveryFailedPayload{
			Reason: cause.Error(),
		})
	if err != nil {
		return err
	}
	if err := h.outbox.CreateEvent(ctx, failed); err != nil {
		return err
	}

	if h.logger != nil {
		h.logger.Warn("delivery step failed",
			slog.String("correlation_id", correlationID.String()),
			slog.Any("error", cause),
		)
	}
	return nil
}

// SendInput carries a validated send-message request.
type SendInput struct {
	ChatID       int64
	SenderID     int64
	Content      string
	RecipientIDs []int64
}

// SendResult identifies the accepted delivery.
type SendResult struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	MessageID     int64     `json:"message_id"`
}

// Sender is the delivery entry point. It starts the tracking operation and
// stages the workflow's start event in one transaction; everything after that
// runs asynchronously.
type Sender struct {
	txManager  database.TxManager
	operations OperationStarter
	outbox     OutboxWriter
	logger     *slog.Logger
}

// NewSender creates a new Sender.
func NewSender(
	txManager database.TxManager,
	operations OperationStarter,
	outbox OutboxWriter,
	logger *slog.Logger,
) *Sender {
	return &Sender{
		txManager:  txManager,
		operations: operations,
		outbox:     outbox,
		logger:     logger,
	}
}

// Send accepts a message for delivery and returns the correlation id clients
// poll for progress.
func (s *Sender) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	messageID, err := domain.NewMessageID()
	if err != nil {
		return nil, err
	}
	correlationID := uuid.Must(uuid.NewV7())

	operationData, err := json.Marshal(map[string]any{
		"message_id":    messageID,
		"chat_id":       input.ChatID,
		"recipient_ids": input.RecipientIDs,
	})
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTx(ctx, func(ctx context.Context) error {
		chatID := input.ChatID
		if _, err := s.operations.Start(ctx, correlationID, deliverydomain.SagaType,
			input.SenderID, &chatID, operationData); err != nil {
			return err
		}

		started, err := event.NewEnvelope(correlationID, deliverydomain.EventDeliveryStarted,
			deliverydomain.DeliveryStartedPayload{
				MessageID:    messageID,
				ChatID:       input.ChatID,
				SenderID:     input.SenderID,
				Content:      input.Content,
				RecipientIDs: input.RecipientIDs,
			})
		if err != nil {
			return err
		}
		return s.outbox.CreateEvent(ctx, started)
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("delivery accepted",
			slog.String("correlation_id", correlationID.String()),
			slog.Int64("message_id", messageID),
			slog.Int64("chat_id", input.ChatID),
		)
	}

	return &SendResult{
		CorrelationID: correlationID,
		MessageID:     messageID,
	}, nil
}

// Reader serves stored chat messages with their content decrypted.
type Reader struct {
	messageRepo MessageRepository
	keeper      ContentKeeper
}

// NewReader creates a new Reader.
func NewReader(messageRepo MessageRepository, keeper ContentKeeper) *Reader {
	return &Reader{
		messageRepo: messageRepo,
		keeper:      keeper,
	}
}

// ListChatMessages returns the most recent messages of a chat with decrypted
// bodies, newest first.
func (r *Reader) ListChatMessages(ctx context.Context, chatID int64, limit int) ([]*domain.Message, error) {
	messages, err := r.messageRepo.ListByChat(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}

	for _, message := range messages {
		ciphertext, err := base64.StdEncoding.DecodeString(message.Body)
		if err != nil {
			return nil, err
		}
		plaintext, err := r.keeper.Decrypt(ctx, ciphertext)
		if err != nil {
			return nil, err
		}
		message.Body = string(plaintext)
	}
	return messages, nil
}
