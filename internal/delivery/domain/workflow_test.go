package domain_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/courier/internal/delivery/domain"
	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/event"
	sagadomain "github.com/allisson/courier/internal/saga/domain"
	sagausecase "github.com/allisson/courier/internal/saga/usecase"
)

type passthroughTxManager struct{}

func (m *passthroughTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memoryStateRepository struct {
	mu     sync.Mutex
	states map[uuid.UUID]*sagadomain.SagaState
}

func newMemoryStateRepository() *memoryStateRepository {
	return &memoryStateRepository{states: make(map[uuid.UUID]*sagadomain.SagaState)}
}

func (r *memoryStateRepository) Create(ctx context.Context, state *sagadomain.SagaState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *state
	r.states[state.CorrelationID] = &copied
	return nil
}

func (r *memoryStateRepository) GetForUpdate(ctx context.Context, correlationID uuid.UUID) (*sagadomain.SagaState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[correlationID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (r *memoryStateRepository) Update(ctx context.Context, state *sagadomain.SagaState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *state
	r.states[state.CorrelationID] = &copied
	return nil
}

func (r *memoryStateRepository) get(t *testing.T, correlationID uuid.UUID) *sagadomain.SagaState {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[correlationID]
	require.True(t, ok)
	copied := *state
	return &copied
}

type memoryStager struct {
	mu     sync.Mutex
	staged []*event.Envelope
}

func (s *memoryStager) CreateEvent(ctx context.Context, env *event.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = append(s.staged, env)
	return nil
}

func (s *memoryStager) lastCommand(t *testing.T) *event.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.staged)
	return s.staged[len(s.staged)-1]
}

func (s *memoryStager) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

type noopScheduler struct {
	mu        sync.Mutex
	scheduled []time.Duration
	canceled  int
}

func (s *noopScheduler) Schedule(correlationID uuid.UUID, token int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, delay)
}

func (s *noopScheduler) Cancel(correlationID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled++
}

func (s *noopScheduler) Stop() {}

type workflowFixture struct {
	engine    *sagausecase.Engine
	stateRepo *memoryStateRepository
	stager    *memoryStager
	scheduler *noopScheduler
}

func newWorkflowFixture(confirmationTimeout time.Duration) *workflowFixture {
	stateRepo := newMemoryStateRepository()
	stager := &memoryStager{}
	scheduler := &noopScheduler{}
	engine := sagausecase.NewEngine(
		domain.NewDefinition(confirmationTimeout),
		&passthroughTxManager{},
		stateRepo,
		stager,
		scheduler,
		nil,
		nil,
	)
	return &workflowFixture{
		engine:    engine,
		stateRepo: stateRepo,
		stager:    stager,
		scheduler: scheduler,
	}
}

func (f *workflowFixture) dispatch(t *testing.T, correlationID uuid.UUID, eventType string, payload any) {
	t.Helper()
	env, err := event.NewEnvelope(correlationID, eventType, payload)
	require.NoError(t, err)
	require.NoError(t, f.engine.Dispatch(context.Background(), env))
}

func (f *workflowFixture) workflowData(t *testing.T, correlationID uuid.UUID) (string, domain.Data) {
	t.Helper()
	state := f.stateRepo.get(t, correlationID)
	var data domain.Data
	require.NoError(t, state.DecodeData(&data))
	return state.CurrentState, data
}

func startedPayload() domain.DeliveryStartedPayload {
	return domain.DeliveryStartedPayload{
		MessageID:    42,
		ChatID:       7,
		SenderID:     9,
		Content:      "hello",
		RecipientIDs: []int64{1, 2},
	}
}

func TestData_AddDeliveredTo(t *testing.T) {
	data := domain.Data{RecipientIDs: []int64{1, 2}}

	assert.True(t, data.AddDeliveredTo(1))
	assert.False(t, data.AddDeliveredTo(1))
	assert.True(t, data.AddDeliveredTo(2))
	assert.Equal(t, []int64{1, 2}, data.DeliveredToIDs)
}

func TestData_IsDeliveredToAll(t *testing.T) {
	data := domain.Data{RecipientIDs: []int64{1, 2, 3}}
	assert.False(t, data.IsDeliveredToAll())

	data.DeliveredToIDs = []int64{1, 3}
	assert.False(t, data.IsDeliveredToAll())

	data.DeliveredToIDs = []int64{3, 2, 1}
	assert.True(t, data.IsDeliveredToAll())
}

func TestData_IsDeliveredToAll_NoRecipients(t *testing.T) {
	data := domain.Data{}
	assert.True(t, data.IsDeliveredToAll())
}

func TestWorkflow_FullDelivery(t *testing.T) {
	fixture := newWorkflowFixture(5 * time.Minute)
	correlationID := uuid.Must(uuid.NewV7())

	fixture.dispatch(t, correlationID, domain.EventDeliveryStarted, startedPayload())

	state, data := fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StateSavingMessage, state)
	assert.Equal(t, int64(42), data.MessageID)
	assert.Equal(t, int64(7), data.ChatID)

	saveCmd := fixture.stager.lastCommand(t)
	assert.Equal(t, domain.CommandSaveMessage, saveCmd.EventType)
	var save domain.SaveMessageCommand
	require.NoError(t, saveCmd.DecodePayload(&save))
	assert.Equal(t, "hello", save.Content)

	fixture.dispatch(t, correlationID, domain.EventMessageSaved, domain.MessageSavedPayload{
		MessageID: 42,
		Content:   "enc:hello",
	})

	state, data = fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StatePublishingMessage, state)
	assert.Equal(t, "enc:hello", data.Content)

	publishCmd := fixture.stager.lastCommand(t)
	assert.Equal(t, domain.CommandPublishMessage, publishCmd.EventType)
	var publish domain.PublishMessageCommand
	require.NoError(t, publishCmd.DecodePayload(&publish))
	assert.Equal(t, "enc:hello", publish.Content)
	assert.Equal(t, []int64{1, 2}, publish.RecipientIDs)

	fixture.dispatch(t, correlationID, domain.EventMessagePublished, nil)

	state, _ = fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StateWaitingDeliveryConfirma, state)
	assert.Equal(t, []time.Duration{5 * time.Minute}, fixture.scheduler.scheduled)

	fixture.dispatch(t, correlationID, domain.EventDeliveredToUser, domain.DeliveredToUserPayload{UserID: 1})
	fixture.dispatch(t, correlationID, domain.EventDeliveredToUser, domain.DeliveredToUserPayload{UserID: 2})

	checkCmd := fixture.stager.lastCommand(t)
	assert.Equal(t, domain.CommandCheckDeliveryStatus, checkCmd.EventType)
	var check domain.CheckDeliveryStatusCommand
	require.NoError(t, checkCmd.DecodePayload(&check))
	assert.ElementsMatch(t, []int64{1, 2}, check.DeliveredToIDs)

	fixture.dispatch(t, correlationID, domain.EventDeliveryStatusChecked, domain.DeliveryStatusCheckedPayload{
		IsDeliveredToAll: true,
	})

	state, data = fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StateCompleted, state)
	assert.ElementsMatch(t, []int64{1, 2}, data.DeliveredToIDs)
	assert.False(t, data.IsDeliveredAfterTimeout)
	assert.Equal(t, 1, fixture.scheduler.canceled)
}

func TestWorkflow_DuplicateDeliveryConfirmation(t *testing.T) {
	fixture := newWorkflowFixture(5 * time.Minute)
	correlationID := uuid.Must(uuid.NewV7())

	fixture.dispatch(t, correlationID, domain.EventDeliveryStarted, startedPayload())
	fixture.dispatch(t, correlationID, domain.EventMessageSaved, domain.MessageSavedPayload{MessageID: 42, Content: "enc:hello"})
	fixture.dispatch(t, correlationID, domain.EventMessagePublished, nil)

	fixture.dispatch(t, correlationID, domain.EventDeliveredToUser, domain.DeliveredToUserPayload{UserID: 1})
	fixture.dispatch(t, correlationID, domain.EventDeliveredToUser, domain.DeliveredToUserPayload{UserID: 1})
	fixture.dispatch(t, correlationID, domain.EventDeliveredToUser, domain.DeliveredToUserPayload{UserID: 1})

	state, data := fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StateWaitingDeliveryConfirma, state)
	assert.Equal(t, []int64{1}, data.DeliveredToIDs)
}

func TestWorkflow_StatusCheckedNotAllKeepsWaiting(t *testing.T) {
	fixture := newWorkflowFixture(5 * time.Minute)
	correlationID := uuid.Must(uuid.NewV7())

	fixture.dispatch(t, correlationID, domain.EventDeliveryStarted, startedPayload())
	fixture.dispatch(t, correlationID, domain.EventMessageSaved, domain.MessageSavedPayload{MessageID: 42, Content: "enc:hello"})
	fixture.dispatch(t, correlationID, domain.EventMessagePublished, nil)
	fixture.dispatch(t, correlationID, domain.EventDeliveredToUser, domain.DeliveredToUserPayload{UserID: 1})

	fixture.dispatch(t, correlationID, domain.EventDeliveryStatusChecked, domain.DeliveryStatusCheckedPayload{
		IsDeliveredToAll: false,
	})

	state, data := fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StateWaitingDeliveryConfirma, state)
	assert.Equal(t, []int64{1}, data.DeliveredToIDs)
	assert.Equal(t, 0, fixture.scheduler.canceled)
}

func TestWorkflow_TimeoutCompletesPartialDelivery(t *testing.T) {
	fixture := newWorkflowFixture(5 * time.Minute)
	correlationID := uuid.Must(uuid.NewV7())

	payload := startedPayload()
	payload.RecipientIDs = []int64{1, 2, 3}
	fixture.dispatch(t, correlationID, domain.EventDeliveryStarted, payload)
	fixture.dispatch(t, correlationID, domain.EventMessageSaved, domain.MessageSavedPayload{MessageID: 42, Content: "enc:hello"})
	fixture.dispatch(t, correlationID, domain.EventMessagePublished, nil)
	fixture.dispatch(t, correlationID, domain.EventDeliveredToUser, domain.DeliveredToUserPayload{UserID: 1})
	fixture.dispatch(t, correlationID, domain.EventDeliveredToUser, domain.DeliveredToUserPayload{UserID: 2})

	fixture.dispatch(t, correlationID, domain.EventDeliveryConfirmationTimedOut, sagausecase.TimeoutPayload{
		TimeoutTokenID: 1,
	})

	state, data := fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StateCompleted, state)
	assert.True(t, data.IsDeliveredAfterTimeout)
	assert.ElementsMatch(t, []int64{1, 2}, data.DeliveredToIDs)
}

func TestWorkflow_FailureDuringSave(t *testing.T) {
	fixture := newWorkflowFixture(5 * time.Minute)
	correlationID := uuid.Must(uuid.NewV7())

	fixture.dispatch(t, correlationID, domain.EventDeliveryStarted, startedPayload())
	fixture.dispatch(t, correlationID, domain.EventDeliveryFailed, domain.DeliveryFailedPayload{
		Reason: "database unavailable",
	})

	state, data := fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StateFailed, state)
	assert.Equal(t, "database unavailable", data.ErrorMessage)
}

func TestWorkflow_FailureDuringPublish(t *testing.T) {
	fixture := newWorkflowFixture(5 * time.Minute)
	correlationID := uuid.Must(uuid.NewV7())

	fixture.dispatch(t, correlationID, domain.EventDeliveryStarted, startedPayload())
	fixture.dispatch(t, correlationID, domain.EventMessageSaved, domain.MessageSavedPayload{MessageID: 42, Content: "enc:hello"})
	fixture.dispatch(t, correlationID, domain.EventDeliveryFailed, domain.DeliveryFailedPayload{
		Reason: "broker unavailable",
	})

	state, data := fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StateFailed, state)
	assert.Equal(t, "broker unavailable", data.ErrorMessage)
}

func TestWorkflow_EventAfterCompletionIgnored(t *testing.T) {
	fixture := newWorkflowFixture(5 * time.Minute)
	correlationID := uuid.Must(uuid.NewV7())

	fixture.dispatch(t, correlationID, domain.EventDeliveryStarted, startedPayload())
	fixture.dispatch(t, correlationID, domain.EventMessageSaved, domain.MessageSavedPayload{MessageID: 42, Content: "enc:hello"})
	fixture.dispatch(t, correlationID, domain.EventMessagePublished, nil)
	fixture.dispatch(t, correlationID, domain.EventDeliveryConfirmationTimedOut, sagausecase.TimeoutPayload{TimeoutTokenID: 1})

	staged := fixture.stager.count()
	fixture.dispatch(t, correlationID, domain.EventDeliveredToUser, domain.DeliveredToUserPayload{UserID: 1})

	state, data := fixture.workflowData(t, correlationID)
	assert.Equal(t, domain.StateCompleted, state)
	assert.Empty(t, data.DeliveredToIDs)
	assert.Equal(t, staged, fixture.stager.count())
}
