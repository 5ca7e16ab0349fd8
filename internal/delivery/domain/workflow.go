// Package domain defines the message-delivery workflow: the states, events and
// commands of the send → save → publish → confirm pipeline, expressed as a
// transition table for the saga engine.
package domain

import (
	"context"
	"time"

	"github.com/allisson/courier/internal/event"
	sagadomain "github.com/allisson/courier/internal/saga/domain"
)

// SagaType identifies the message-delivery workflow.
const SagaType = "message_delivery"

// Workflow states.
const (
	StateInitial                 = "initial"
	StateSavingMessage           = "saving_message"
	StatePublishingMessage       = "publishing_message"
	StateWaitingDeliveryConfirma = "waiting_delivery_confirmation"
	StateCompleted               = "completed"
	StateFailed                  = "failed"
)

// Inbound events.
const (
	EventDeliveryStarted              = "delivery_started"
	EventMessageSaved                 = "message_saved"
	EventMessagePublished             = "message_published"
	EventDeliveredToUser              = "delivered_to_user"
	EventDeliveryStatusChecked        = "delivery_status_checked"
	EventDeliveryFailed               = "delivery_failed"
	EventDeliveryConfirmationTimedOut = "delivery_confirmation_timed_out"
)

// Outbound commands consumed by the downstream step handlers.
const (
	CommandSaveMessage         = "save_message"
	CommandPublishMessage      = "publish_message"
	CommandCheckDeliveryStatus = "check_delivery_status"
)

// Data is the workflow payload stored on the saga row. DeliveredToIDs is
// union-only: a recipient id is added at most once, duplicates are no-ops.
type Data struct {
	MessageID               int64   `json:"message_id"`
	ChatID                  int64   `json:"chat_id"`
	SenderID                int64   `json:"sender_id"`
	Content                 string  `json:"content,omitempty"`
	RecipientIDs            []int64 `json:"recipient_ids"`
	DeliveredToIDs          []int64 `json:"delivered_to_ids,omitempty"`
	IsDeliveredAfterTimeout bool    `json:"is_delivered_after_timeout,omitempty"`
	ErrorMessage            string  `json:"error_message,omitempty"`
}

// AddDeliveredTo adds a recipient to the delivered set. Returns false when the
// id was already present.
func (d *Data) AddDeliveredTo(userID int64) bool {
	for _, id := range d.DeliveredToIDs {
		if id == userID {
			return false
		}
	}
	d.DeliveredToIDs = append(d.DeliveredToIDs, userID)
	return true
}

// IsDeliveredToAll reports whether every intended recipient is in the
// delivered set.
func (d *Data) IsDeliveredToAll() bool {
	delivered := make(map[int64]bool, len(d.DeliveredToIDs))
	for _, id := range d.DeliveredToIDs {
		delivered[id] = true
	}
	for _, id := range d.RecipientIDs {
		if !delivered[id] {
			return false
		}
	}
	return true
}

// DeliveryStartedPayload starts the workflow.
type DeliveryStartedPayload struct {
	MessageID    int64   `json:"message_id"`
	ChatID       int64   `json:"chat_id"`
	SenderID     int64   `json:"sender_id"`
	Content      string  `json:"content"`
	RecipientIDs []int64 `json:"recipient_ids"`
}

// MessageSavedPayload confirms the save step; Content carries the transformed
// (encrypted) body the rest of the pipeline works with.
type MessageSavedPayload struct {
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}

// DeliveredToUserPayload confirms delivery to a single recipient.
type DeliveredToUserPayload struct {
	UserID int64 `json:"user_id"`
}

// DeliveryStatusCheckedPayload reports the outcome of a delivery-status check.
type DeliveryStatusCheckedPayload struct {
	IsDeliveredToAll bool `json:"is_delivered_to_all"`
}

// DeliveryFailedPayload records why a step failed.
type DeliveryFailedPayload struct {
	Reason string `json:"reason"`
}

// SaveMessageCommand asks the message service to persist the message.
type SaveMessageCommand struct {
	MessageID int64  `json:"message_id"`
	ChatID    int64  `json:"chat_id"`
	SenderID  int64  `json:"sender_id"`
	Content   string `json:"content"`
}

// PublishMessageCommand asks the message service to broadcast the message.
type PublishMessageCommand struct {
	MessageID    int64   `json:"message_id"`
	ChatID       int64   `json:"chat_id"`
	Content      string  `json:"content"`
	RecipientIDs []int64 `json:"recipient_ids"`
}

// CheckDeliveryStatusCommand asks for a delivery-status evaluation.
type CheckDeliveryStatusCommand struct {
	MessageID      int64   `json:"message_id"`
	RecipientIDs   []int64 `json:"recipient_ids"`
	DeliveredToIDs []int64 `json:"delivered_to_ids"`
}

// NewDefinition builds the message-delivery transition table. The
// confirmation timeout is armed on entry to WaitingDeliveryConfirmation and
// forces completion with IsDeliveredAfterTimeout set when it fires first.
func NewDefinition(confirmationTimeout time.Duration) *sagadomain.Definition {
	return &sagadomain.Definition{
		SagaType:       SagaType,
		InitialState:   StateInitial,
		StartEvent:     EventDeliveryStarted,
		TimeoutEvent:   EventDeliveryConfirmationTimedOut,
		TerminalStates: []string{StateCompleted, StateFailed},
		Transitions: map[sagadomain.TransitionKey]sagadomain.ApplyFunc{
			{State: StateInitial, EventType: EventDeliveryStarted}:                              applyDeliveryStarted,
			{State: StateSavingMessage, EventType: EventMessageSaved}:                           applyMessageSaved,
			{State: StateSavingMessage, EventType: EventDeliveryFailed}:                         applyDeliveryFailed,
			{State: StatePublishingMessage, EventType: EventMessagePublished}:                   applyMessagePublished(confirmationTimeout),
			{State: StatePublishingMessage, EventType: EventDeliveryFailed}:                     applyDeliveryFailed,
			{State: StateWaitingDeliveryConfirma, EventType: EventDeliveredToUser}:              applyDeliveredToUser,
			{State: StateWaitingDeliveryConfirma, EventType: EventDeliveryStatusChecked}:        applyDeliveryStatusChecked,
			{State: StateWaitingDeliveryConfirma, EventType: EventDeliveryConfirmationTimedOut}: applyConfirmationTimedOut,
		},
	}
}

func applyDeliveryStarted(
	ctx context.Context,
	state *sagadomain.SagaState,
	env *event.Envelope,
) (*sagadomain.Outcome, error) {
	var payload DeliveryStartedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, err
	}

	data := Data{
		MessageID:    payload.MessageID,
		ChatID:       payload.ChatID,
		SenderID:     payload.SenderID,
		Content:      payload.Content,
		RecipientIDs: payload.RecipientIDs,
	}
	if err := state.SetData(data); err != nil {
		return nil, err
	}

	cmd, err := event.NewEnvelope(env.CorrelationID, CommandSaveMessage, SaveMessageCommand{
		MessageID: payload.MessageID,
		ChatID:    payload.ChatID,
		SenderID:  payload.SenderID,
		Content:   payload.Content,
	})
	if err != nil {
		return nil, err
	}

	return &sagadomain.Outcome{
		NextState: StateSavingMessage,
		Commands:  []*event.Envelope{cmd},
	}, nil
}

func applyMessageSaved(
	ctx context.Context,
	state *sagadomain.SagaState,
	env *event.Envelope,
) (*sagadomain.Outcome, error) {
	var payload MessageSavedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, err
	}

	var data Data
	if err := state.DecodeData(&data); err != nil {
		return nil, err
	}
	data.Content = payload.Content
	if err := state.SetData(data); err != nil {
		return nil, err
	}

	cmd, err := event.NewEnvelope(env.CorrelationID, CommandPublishMessage, PublishMessageCommand{
		MessageID:    data.MessageID,
		ChatID:       data.ChatID,
		Content:      data.Content,
		RecipientIDs: data.RecipientIDs,
	})
	if err != nil {
		return nil, err
	}

	return &sagadomain.Outcome{
		NextState: StatePublishingMessage,
		Commands:  []*event.Envelope{cmd},
	}, nil
}

func applyMessagePublished(confirmationTimeout time.Duration) sagadomain.ApplyFunc {
	return func(
		ctx context.Context,
		state *sagadomain.SagaState,
		env *event.Envelope,
	) (*sagadomain.Outcome, error) {
		return &sagadomain.Outcome{
			NextState:    StateWaitingDeliveryConfirma,
			TimeoutAfter: confirmationTimeout,
		}, nil
	}
}

func applyDeliveredToUser(
	ctx context.Context,
	state *sagadomain.SagaState,
	env *event.Envelope,
) (*sagadomain.Outcome, error) {
	var payload DeliveredToUserPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, err
	}

	var data Data
	if err := state.DecodeData(&data); err != nil {
		return nil, err
	}
	data.AddDeliveredTo(payload.UserID)
	if err := state.SetData(data); err != nil {
		return nil, err
	}

	cmd, err := event.NewEnvelope(env.CorrelationID, CommandCheckDeliveryStatus, CheckDeliveryStatusCommand{
		MessageID:      data.MessageID,
		RecipientIDs:   data.RecipientIDs,
		DeliveredToIDs: data.DeliveredToIDs,
	})
	if err != nil {
		return nil, err
	}

	return &sagadomain.Outcome{
		NextState: StateWaitingDeliveryConfirma,
		Commands:  []*event.Envelope{cmd},
	}, nil
}

func applyDeliveryStatusChecked(
	ctx context.Context,
	state *sagadomain.SagaState,
	env *event.Envelope,
) (*sagadomain.Outcome, error) {
	var payload DeliveryStatusCheckedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, err
	}

	var data Data
	if err := state.DecodeData(&data); err != nil {
		return nil, err
	}

	// Completion requires agreement: the check result and the recorded
	// delivered set must both say every recipient is covered.
	if !payload.IsDeliveredToAll || !data.IsDeliveredToAll() {
		return &sagadomain.Outcome{NextState: StateWaitingDeliveryConfirma}, nil
	}

	return &sagadomain.Outcome{NextState: StateCompleted}, nil
}

func applyDeliveryFailed(
	ctx context.Context,
	state *sagadomain.SagaState,
	env *event.Envelope,
) (*sagadomain.Outcome, error) {
	var payload DeliveryFailedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return nil, err
	}

	var data Data
	if err := state.DecodeData(&data); err != nil {
		return nil, err
	}
	data.ErrorMessage = payload.Reason
	if err := state.SetData(data); err != nil {
		return nil, err
	}

	return &sagadomain.Outcome{NextState: StateFailed}, nil
}

func applyConfirmationTimedOut(
	ctx context.Context,
	state *sagadomain.SagaState,
	env *event.Envelope,
) (*sagadomain.Outcome, error) {
	var data Data
	if err := state.DecodeData(&data); err != nil {
		return nil, err
	}
	data.IsDeliveredAfterTimeout = true
	if err := state.SetData(data); err != nil {
		return nil, err
	}

	// Partial delivery after the timeout is an accepted terminal outcome.
	return &sagadomain.Outcome{NextState: StateCompleted}, nil
}
