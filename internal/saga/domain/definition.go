package domain

import (
	"context"
	"sort"
	"time"

	"github.com/allisson/courier/internal/event"
)

// TransitionKey identifies one legal transition: the state the workflow is in
// and the event type arriving in that state.
type TransitionKey struct {
	State     string
	EventType string
}

// Outcome describes the result of applying a transition: the state to move
// to, commands to stage through the outbox in the same transaction, and an
// optional timeout to arm once the transaction commits.
type Outcome struct {
	NextState    string
	Commands     []*event.Envelope
	TimeoutAfter time.Duration
}

// ApplyFunc executes one transition. It may mutate the state's Data and
// returns the outcome, or nil to ignore the event without error.
type ApplyFunc func(ctx context.Context, state *SagaState, env *event.Envelope) (*Outcome, error)

// Definition describes a workflow as data: its transition table, initial and
// terminal states, the event that may create a new instance, and the event
// type a fired timeout re-enters the engine with.
type Definition struct {
	SagaType       string
	InitialState   string
	StartEvent     string
	TimeoutEvent   string
	TerminalStates []string
	Transitions    map[TransitionKey]ApplyFunc
}

// Transition looks up the apply function for (state, eventType).
func (d *Definition) Transition(state, eventType string) (ApplyFunc, bool) {
	fn, ok := d.Transitions[TransitionKey{State: state, EventType: eventType}]
	return fn, ok
}

// IsTerminal reports whether a state ends the workflow.
func (d *Definition) IsTerminal(state string) bool {
	for _, terminal := range d.TerminalStates {
		if terminal == state {
			return true
		}
	}
	return false
}

// EventTypes returns the sorted set of event types the definition reacts to,
// excluding the timeout event, which is delivered in-process rather than
// through the bus.
func (d *Definition) EventTypes() []string {
	seen := make(map[string]bool)
	for key := range d.Transitions {
		if key.EventType == d.TimeoutEvent {
			continue
		}
		seen[key.EventType] = true
	}

	types := make([]string, 0, len(seen))
	for eventType := range seen {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}
