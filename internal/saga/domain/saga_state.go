// Package domain contains the generic saga model: the durable per-workflow
// state row and the transition-table definition the engine executes.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/courier/internal/errors"
)

// SagaState is the durable state of one workflow instance, keyed by
// correlation id. Data holds the workflow-specific payload as JSON;
// TimeoutTokenID increments every time a timeout is armed or invalidated, so
// a timer firing with an old token is recognized as stale.
type SagaState struct {
	CorrelationID  uuid.UUID       `json:"correlation_id" db:"correlation_id"`
	SagaType       string          `json:"saga_type" db:"saga_type"`
	CurrentState   string          `json:"current_state" db:"current_state"`
	Data           json.RawMessage `json:"data" db:"data"`
	TimeoutTokenID int64           `json:"timeout_token_id" db:"timeout_token_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// NewSagaState creates a saga state in the definition's initial state.
func NewSagaState(correlationID uuid.UUID, sagaType, initialState string) *SagaState {
	return &SagaState{
		CorrelationID: correlationID,
		SagaType:      sagaType,
		CurrentState:  initialState,
		Data:          json.RawMessage("{}"),
	}
}

// DecodeData unmarshals the workflow payload into v.
func (s *SagaState) DecodeData(v any) error {
	if len(s.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(s.Data, v); err != nil {
		return apperrors.Wrap(err, "failed to decode saga data")
	}
	return nil
}

// SetData replaces the workflow payload with the JSON encoding of v.
func (s *SagaState) SetData(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode saga data")
	}
	s.Data = data
	return nil
}
