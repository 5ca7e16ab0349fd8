package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	deliverydomain "github.com/allisson/courier/internal/delivery/domain"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/event"
	sagadomain "github.com/allisson/courier/internal/saga/domain"
	sagausecase "github.com/allisson/courier/internal/saga/usecase"
)

// Progress checkpoints reported to the ledger as a delivery advances.
const (
	progressSaving  = 10
	progressPublish = 50
	progressWaiting = 75
)

// NewDeliveryTrackingHook returns a saga transition hook that mirrors the
// message-delivery workflow into the operation ledger. It runs inside the
// dispatch transaction, so the ledger row and the saga row move together.
//
// A missing operation row is tolerated with a warning: deliveries started by
// producers that do not track operations still flow through the workflow.
func NewDeliveryTrackingHook(operations OperationUseCase, logger *slog.Logger) sagausecase.TransitionHook {
	return func(ctx context.Context, state *sagadomain.SagaState, env *event.Envelope) error {
		err := trackDelivery(ctx, operations, state, env)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			if logger != nil {
				logger.Warn("no operation record for delivery",
					slog.String("correlation_id", state.CorrelationID.String()),
					slog.String("state", state.CurrentState),
				)
			}
			return nil
		}
		return err
	}
}

func trackDelivery(
	ctx context.Context,
	operations OperationUseCase,
	state *sagadomain.SagaState,
	env *event.Envelope,
) error {
	switch state.CurrentState {
	case deliverydomain.StateSavingMessage:
		return operations.UpdateProgress(ctx, state.CorrelationID, progressSaving, "saving message")

	case deliverydomain.StatePublishingMessage:
		return operations.UpdateProgress(ctx, state.CorrelationID, progressPublish, "publishing message")

	case deliverydomain.StateWaitingDeliveryConfirma:
		// Confirmation events re-enter this state; only the entry transition
		// moves the progress bar.
		if env.EventType == deliverydomain.EventMessagePublished {
			return operations.UpdateProgress(ctx, state.CorrelationID, progressWaiting, "waiting for delivery confirmations")
		}
		return nil

	case deliverydomain.StateCompleted:
		var data deliverydomain.Data
		if err := state.DecodeData(&data); err != nil {
			return err
		}

		delivered := data.DeliveredToIDs
		if delivered == nil {
			delivered = []int64{}
		}
		result, err := json.Marshal(map[string]any{
			"delivered_to_ids":           delivered,
			"is_delivered_after_timeout": data.IsDeliveredAfterTimeout,
		})
		if err != nil {
			return err
		}

		return operations.Complete(ctx, state.CorrelationID, result, !data.IsDeliveredToAll())

	case deliverydomain.StateFailed:
		var data deliverydomain.Data
		if err := state.DecodeData(&data); err != nil {
			return err
		}
		return operations.Fail(ctx, state.CorrelationID, data.ErrorMessage, "delivery_failed")
	}

	return nil
}
