package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/event"
	"github.com/allisson/courier/internal/saga/domain"
)

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	// Execute the function to test the logic inside
	return fn(ctx)
}

// MockStateRepository is a mock implementation of StateRepository
type MockStateRepository struct {
	mock.Mock
}

func (m *MockStateRepository) Create(ctx context.Context, state *domain.SagaState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockStateRepository) GetForUpdate(ctx context.Context, correlationID uuid.UUID) (*domain.SagaState, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SagaState), args.Error(1)
}

func (m *MockStateRepository) Update(ctx context.Context, state *domain.SagaState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// MockCommandStager is a mock implementation of CommandStager
type MockCommandStager struct {
	mock.Mock
}

func (m *MockCommandStager) CreateEvent(ctx context.Context, env *event.Envelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

// recordingScheduler records Schedule/Cancel calls without real timers
type recordingScheduler struct {
	scheduled []uuid.UUID
	tokens    []int64
	delays    []time.Duration
	canceled  []uuid.UUID
	fire      FireFunc
}

func (s *recordingScheduler) Bind(fire FireFunc) { s.fire = fire }

func (s *recordingScheduler) Schedule(correlationID uuid.UUID, token int64, delay time.Duration) {
	s.scheduled = append(s.scheduled, correlationID)
	s.tokens = append(s.tokens, token)
	s.delays = append(s.delays, delay)
}

func (s *recordingScheduler) Cancel(correlationID uuid.UUID) {
	s.canceled = append(s.canceled, correlationID)
}

func (s *recordingScheduler) Stop() {}

func deliveryDefinition() *domain.Definition {
	return &domain.Definition{
		SagaType:       "message_delivery",
		InitialState:   "initial",
		StartEvent:     "delivery_started",
		TimeoutEvent:   "delivery_confirmation_timed_out",
		TerminalStates: []string{"completed", "failed"},
		Transitions: map[domain.TransitionKey]domain.ApplyFunc{
			{State: "initial", EventType: "delivery_started"}: func(
				ctx context.Context, state *domain.SagaState, env *event.Envelope,
			) (*domain.Outcome, error) {
				cmd, err := event.NewEnvelope(env.CorrelationID, "save_message", map[string]any{"message_id": 42})
				if err != nil {
					return nil, err
				}
				return &domain.Outcome{NextState: "saving_message", Commands: []*event.Envelope{cmd}}, nil
			},
			{State: "saving_message", EventType: "message_saved"}: func(
				ctx context.Context, state *domain.SagaState, env *event.Envelope,
			) (*domain.Outcome, error) {
				return &domain.Outcome{
					NextState:    "waiting_delivery_confirmation",
					TimeoutAfter: 5 * time.Minute,
				}, nil
			},
			{State: "waiting_delivery_confirmation", EventType: "delivery_confirmation_timed_out"}: func(
				ctx context.Context, state *domain.SagaState, env *event.Envelope,
			) (*domain.Outcome, error) {
				return &domain.Outcome{NextState: "completed"}, nil
			},
		},
	}
}

type engineFixture struct {
	txManager *MockTxManager
	stateRepo *MockStateRepository
	stager    *MockCommandStager
	scheduler *recordingScheduler
	engine    *Engine
}

func newEngineFixture(hook TransitionHook) *engineFixture {
	f := &engineFixture{
		txManager: &MockTxManager{},
		stateRepo: &MockStateRepository{},
		stager:    &MockCommandStager{},
		scheduler: &recordingScheduler{},
	}
	f.engine = NewEngine(deliveryDefinition(), f.txManager, f.stateRepo, f.stager, f.scheduler, hook, nil)
	return f
}

func TestEngine_Dispatch_StartEventCreatesInstance(t *testing.T) {
	f := newEngineFixture(nil)
	correlationID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	env, err := event.NewEnvelope(correlationID, "delivery_started", map[string]any{"message_id": 42})
	require.NoError(t, err)

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", ctx, correlationID).Return(nil, apperrors.ErrNotFound)
	f.stager.On("CreateEvent", ctx, mock.AnythingOfType("*event.Envelope")).Return(nil)
	f.stateRepo.On("Create", ctx, mock.AnythingOfType("*domain.SagaState")).Return(nil)

	err = f.engine.Dispatch(ctx, env)

	assert.NoError(t, err)
	f.stateRepo.AssertExpectations(t)
	f.stager.AssertExpectations(t)

	created := f.stateRepo.Calls[1].Arguments.Get(1).(*domain.SagaState)
	assert.Equal(t, correlationID, created.CorrelationID)
	assert.Equal(t, "message_delivery", created.SagaType)
	assert.Equal(t, "saving_message", created.CurrentState)

	staged := f.stager.Calls[0].Arguments.Get(1).(*event.Envelope)
	assert.Equal(t, "save_message", staged.EventType)
	assert.Equal(t, correlationID, staged.CorrelationID)
}

func TestEngine_Dispatch_UnknownInstanceDropped(t *testing.T) {
	f := newEngineFixture(nil)
	correlationID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	// Not the start event, and no saga row exists
	env, err := event.NewEnvelope(correlationID, "message_saved", nil)
	require.NoError(t, err)

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", ctx, correlationID).Return(nil, apperrors.ErrNotFound)

	err = f.engine.Dispatch(ctx, env)

	assert.NoError(t, err)
	f.stateRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.stateRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestEngine_Dispatch_UnmappedEventIgnored(t *testing.T) {
	f := newEngineFixture(nil)
	correlationID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	state := domain.NewSagaState(correlationID, "message_delivery", "initial")
	state.CurrentState = "completed"

	env, err := event.NewEnvelope(correlationID, "message_saved", nil)
	require.NoError(t, err)

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", ctx, correlationID).Return(state, nil)

	err = f.engine.Dispatch(ctx, env)

	assert.NoError(t, err)
	assert.Equal(t, "completed", state.CurrentState)
	f.stateRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestEngine_Dispatch_ArmsTimeout(t *testing.T) {
	f := newEngineFixture(nil)
	correlationID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	state := domain.NewSagaState(correlationID, "message_delivery", "initial")
	state.CurrentState = "saving_message"

	env, err := event.NewEnvelope(correlationID, "message_saved", nil)
	require.NoError(t, err)

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", ctx, correlationID).Return(state, nil)
	f.stateRepo.On("Update", ctx, state).Return(nil)

	err = f.engine.Dispatch(ctx, env)

	assert.NoError(t, err)
	assert.Equal(t, "waiting_delivery_confirmation", state.CurrentState)
	assert.Equal(t, int64(1), state.TimeoutTokenID)

	require.Len(t, f.scheduler.scheduled, 1)
	assert.Equal(t, correlationID, f.scheduler.scheduled[0])
	assert.Equal(t, int64(1), f.scheduler.tokens[0])
	assert.Equal(t, 5*time.Minute, f.scheduler.delays[0])
}

func TestEngine_Dispatch_TimeoutWithCurrentToken(t *testing.T) {
	f := newEngineFixture(nil)
	correlationID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	state := domain.NewSagaState(correlationID, "message_delivery", "initial")
	state.CurrentState = "waiting_delivery_confirmation"
	state.TimeoutTokenID = 1

	env, err := event.NewEnvelope(correlationID, "delivery_confirmation_timed_out", TimeoutPayload{TimeoutTokenID: 1})
	require.NoError(t, err)

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", ctx, correlationID).Return(state, nil)
	f.stateRepo.On("Update", ctx, state).Return(nil)

	err = f.engine.Dispatch(ctx, env)

	assert.NoError(t, err)
	assert.Equal(t, "completed", state.CurrentState)
	// Token bumped on reaching a terminal state
	assert.Equal(t, int64(2), state.TimeoutTokenID)
	assert.Equal(t, []uuid.UUID{correlationID}, f.scheduler.canceled)
}

func TestEngine_Dispatch_StaleTimeoutIgnored(t *testing.T) {
	f := newEngineFixture(nil)
	correlationID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	state := domain.NewSagaState(correlationID, "message_delivery", "initial")
	state.CurrentState = "waiting_delivery_confirmation"
	state.TimeoutTokenID = 2

	// Timer armed with token 1 fires after a newer timeout took token 2
	env, err := event.NewEnvelope(correlationID, "delivery_confirmation_timed_out", TimeoutPayload{TimeoutTokenID: 1})
	require.NoError(t, err)

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", ctx, correlationID).Return(state, nil)

	err = f.engine.Dispatch(ctx, env)

	assert.NoError(t, err)
	assert.Equal(t, "waiting_delivery_confirmation", state.CurrentState)
	f.stateRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestEngine_Dispatch_ApplyErrorRollsBack(t *testing.T) {
	f := newEngineFixture(nil)
	correlationID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	def := deliveryDefinition()
	applyErr := errors.New("decode failed")
	def.Transitions[domain.TransitionKey{State: "initial", EventType: "delivery_started"}] = func(
		ctx context.Context, state *domain.SagaState, env *event.Envelope,
	) (*domain.Outcome, error) {
		return nil, applyErr
	}
	f.engine = NewEngine(def, f.txManager, f.stateRepo, f.stager, f.scheduler, nil, nil)

	env, err := event.NewEnvelope(correlationID, "delivery_started", map[string]any{"message_id": 42})
	require.NoError(t, err)

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", ctx, correlationID).Return(nil, apperrors.ErrNotFound)

	err = f.engine.Dispatch(ctx, env)

	assert.ErrorIs(t, err, applyErr)
	f.stateRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEngine_Dispatch_StagerErrorRollsBack(t *testing.T) {
	f := newEngineFixture(nil)
	correlationID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	env, err := event.NewEnvelope(correlationID, "delivery_started", map[string]any{"message_id": 42})
	require.NoError(t, err)

	stageErr := errors.New("insert failed")
	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", ctx, correlationID).Return(nil, apperrors.ErrNotFound)
	f.stager.On("CreateEvent", ctx, mock.AnythingOfType("*event.Envelope")).Return(stageErr)

	err = f.engine.Dispatch(ctx, env)

	assert.ErrorIs(t, err, stageErr)
	f.stateRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEngine_Dispatch_HookRunsInTransaction(t *testing.T) {
	hooked := 0
	var hookedState *domain.SagaState
	hook := func(ctx context.Context, state *domain.SagaState, env *event.Envelope) error {
		hooked++
		hookedState = state
		return nil
	}

	f := newEngineFixture(hook)
	correlationID := uuid.Must(uuid.NewV7())
	ctx := context.Background()

	env, err := event.NewEnvelope(correlationID, "delivery_started", map[string]any{"message_id": 42})
	require.NoError(t, err)

	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", ctx, correlationID).Return(nil, apperrors.ErrNotFound)
	f.stager.On("CreateEvent", ctx, mock.AnythingOfType("*event.Envelope")).Return(nil)
	f.stateRepo.On("Create", ctx, mock.AnythingOfType("*domain.SagaState")).Return(nil)

	err = f.engine.Dispatch(ctx, env)

	assert.NoError(t, err)
	assert.Equal(t, 1, hooked)
	assert.Equal(t, "saving_message", hookedState.CurrentState)
}

func TestEngine_FireTimeout_ReentersDispatch(t *testing.T) {
	f := newEngineFixture(nil)
	correlationID := uuid.Must(uuid.NewV7())

	state := domain.NewSagaState(correlationID, "message_delivery", "initial")
	state.CurrentState = "waiting_delivery_confirmation"
	state.TimeoutTokenID = 1

	f.txManager.On("WithTx", mock.Anything, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.stateRepo.On("GetForUpdate", mock.Anything, correlationID).Return(state, nil)
	f.stateRepo.On("Update", mock.Anything, state).Return(nil)

	// The engine bound the scheduler's fire function at construction
	require.NotNil(t, f.scheduler.fire)
	f.scheduler.fire(correlationID, 1)

	assert.Equal(t, "completed", state.CurrentState)
}
