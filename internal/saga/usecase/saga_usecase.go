// Package usecase implements the saga engine: durable, transition-table driven
// workflow execution with transactional event staging and timeout fallback.
package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/courier/internal/database"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/event"
	"github.com/allisson/courier/internal/saga/domain"
)

// TimeoutPayload is the payload of the in-process timeout event. The token
// identifies which armed timeout fired; a mismatch with the stored token
// means the timeout was superseded and the event is dropped.
type TimeoutPayload struct {
	TimeoutTokenID int64 `json:"timeout_token_id"`
}

// StateRepository defines saga state repository operations
type StateRepository interface {
	Create(ctx context.Context, state *domain.SagaState) error
	GetForUpdate(ctx context.Context, correlationID uuid.UUID) (*domain.SagaState, error)
	Update(ctx context.Context, state *domain.SagaState) error
}

// CommandStager stages outgoing envelopes so they commit with the transition
type CommandStager interface {
	CreateEvent(ctx context.Context, env *event.Envelope) error
}

// TransitionHook runs inside the dispatch transaction after a transition is
// applied. Used to keep the operation ledger in step with the workflow.
type TransitionHook func(ctx context.Context, state *domain.SagaState, env *event.Envelope) error

// Engine executes one workflow definition. Each dispatch is a single
// transaction over the locked saga row: look up the transition for
// (current_state, event_type), apply it, stage emitted commands through the
// outbox and persist the new state. Unknown events and unknown workflow
// instances are dropped with a warning, never errored, so redelivery cannot
// wedge the bus.
type Engine struct {
	definition *domain.Definition
	txManager  database.TxManager
	stateRepo  StateRepository
	stager     CommandStager
	scheduler  TimeoutScheduler
	hook       TransitionHook
	logger     *slog.Logger
}

// NewEngine creates a new Engine and binds the scheduler's firing function to
// it, so an elapsed timeout re-enters Dispatch as a timeout event.
func NewEngine(
	definition *domain.Definition,
	txManager database.TxManager,
	stateRepo StateRepository,
	stager CommandStager,
	scheduler TimeoutScheduler,
	hook TransitionHook,
	logger *slog.Logger,
) *Engine {
	engine := &Engine{
		definition: definition,
		txManager:  txManager,
		stateRepo:  stateRepo,
		stager:     stager,
		scheduler:  scheduler,
		hook:       hook,
		logger:     logger,
	}

	if binder, ok := scheduler.(interface{ Bind(FireFunc) }); ok {
		binder.Bind(engine.fireTimeout)
	}

	return engine
}

// Dispatch routes one event into the workflow instance identified by the
// envelope's correlation id. At most one transition is applied per event.
func (e *Engine) Dispatch(ctx context.Context, env *event.Envelope) error {
	var armToken int64
	var arm bool
	var outcome *domain.Outcome

	err := e.txManager.WithTx(ctx, func(ctx context.Context) error {
		arm = false
		outcome = nil

		state, created, err := e.loadState(ctx, env)
		if err != nil || state == nil {
			return err
		}

		if env.EventType == e.definition.TimeoutEvent && !e.timeoutTokenMatches(state, env) {
			return nil
		}

		apply, ok := e.definition.Transition(state.CurrentState, env.EventType)
		if !ok {
			if e.logger != nil {
				e.logger.Warn("no transition for event in current state",
					slog.String("correlation_id", env.CorrelationID.String()),
					slog.String("current_state", state.CurrentState),
					slog.String("event_type", env.EventType),
				)
			}
			return nil
		}

		outcome, err = apply(ctx, state, env)
		if err != nil {
			return err
		}
		if outcome == nil {
			// The transition inspected the event and chose to ignore it.
			return nil
		}

		state.CurrentState = outcome.NextState

		for _, cmd := range outcome.Commands {
			if err := e.stager.CreateEvent(ctx, cmd); err != nil {
				return err
			}
		}

		// Arming a timeout, or reaching a terminal state, invalidates any
		// outstanding timer by bumping the token.
		if outcome.TimeoutAfter > 0 || e.definition.IsTerminal(state.CurrentState) {
			state.TimeoutTokenID++
		}
		if outcome.TimeoutAfter > 0 {
			armToken = state.TimeoutTokenID
			arm = true
		}

		if err := e.persist(ctx, state, created); err != nil {
			return err
		}

		if e.hook != nil {
			return e.hook(ctx, state, env)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Timers touch shared in-memory state only after the transaction commits.
	if outcome != nil && e.scheduler != nil {
		switch {
		case arm:
			e.scheduler.Schedule(env.CorrelationID, armToken, outcome.TimeoutAfter)
		case e.definition.IsTerminal(outcome.NextState):
			e.scheduler.Cancel(env.CorrelationID)
		}
	}

	return nil
}

// loadState fetches the locked saga row, creating a fresh instance when the
// workflow's start event arrives for an unknown correlation id. A nil state
// with nil error means the event was dropped.
func (e *Engine) loadState(ctx context.Context, env *event.Envelope) (*domain.SagaState, bool, error) {
	state, err := e.stateRepo.GetForUpdate(ctx, env.CorrelationID)
	if err == nil {
		return state, false, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, false, err
	}

	if env.EventType != e.definition.StartEvent {
		if e.logger != nil {
			e.logger.Warn("event for unknown workflow instance",
				slog.String("correlation_id", env.CorrelationID.String()),
				slog.String("event_type", env.EventType),
			)
		}
		return nil, false, nil
	}

	state = domain.NewSagaState(env.CorrelationID, e.definition.SagaType, e.definition.InitialState)
	return state, true, nil
}

func (e *Engine) persist(ctx context.Context, state *domain.SagaState, created bool) error {
	if created {
		return e.stateRepo.Create(ctx, state)
	}
	return e.stateRepo.Update(ctx, state)
}

// timeoutTokenMatches decodes the timeout token and compares it to the stored
// one. A mismatch means a newer timeout superseded this timer.
func (e *Engine) timeoutTokenMatches(state *domain.SagaState, env *event.Envelope) bool {
	var payload TimeoutPayload
	if err := env.DecodePayload(&payload); err != nil {
		if e.logger != nil {
			e.logger.Warn("malformed timeout payload",
				slog.String("correlation_id", env.CorrelationID.String()),
				slog.Any("error", err),
			)
		}
		return false
	}

	if payload.TimeoutTokenID != state.TimeoutTokenID {
		if e.logger != nil {
			e.logger.Debug("stale timeout ignored",
				slog.String("correlation_id", env.CorrelationID.String()),
				slog.Int64("fired_token", payload.TimeoutTokenID),
				slog.Int64("current_token", state.TimeoutTokenID),
			)
		}
		return false
	}
	return true
}

// fireTimeout is invoked by the scheduler when a timer elapses. It re-enters
// Dispatch with a timeout envelope carrying the armed token.
func (e *Engine) fireTimeout(correlationID uuid.UUID, token int64) {
	env, err := event.NewEnvelope(correlationID, e.definition.TimeoutEvent, TimeoutPayload{TimeoutTokenID: token})
	if err != nil {
		if e.logger != nil {
			e.logger.Error("failed to build timeout event", slog.Any("error", err))
		}
		return
	}

	if err := e.Dispatch(context.Background(), env); err != nil && e.logger != nil {
		e.logger.Error("failed to dispatch timeout event",
			slog.String("correlation_id", correlationID.String()),
			slog.Any("error", err),
		)
	}
}
