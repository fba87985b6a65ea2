package domain

import (
	"fmt"
	"time"
)

// State is a position in the per-request dispatch state machine.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateComposed   State = "composed"
	StateDispatched State = "dispatched"
	StateNormalized State = "normalized"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Stage names the pipeline step that produced a failure.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageCompose   Stage = "compose"
	StageDispatch  Stage = "dispatch"
	StageNormalize Stage = "normalize"
)

// next lists the only successful transition out of each state.
var next = map[State]State{
	StateReceived:   StateClassified,
	StateClassified: StateComposed,
	StateComposed:   StateDispatched,
	StateDispatched: StateNormalized,
	StateNormalized: StateCompleted,
}

// stageFrom maps the state a request was in to the stage that was running.
var stageFrom = map[State]Stage{
	StateReceived:   StageClassify,
	StateClassified: StageCompose,
	StateComposed:   StageDispatch,
	StateDispatched: StageNormalize,
}

// Transition records one state change of a dispatch.
type Transition struct {
	CorrelationID string    `json:"correlation_id"`
	From          State     `json:"from"`
	To            State     `json:"to"`
	Stage         Stage     `json:"stage,omitempty"`
	AgentID       string    `json:"agent_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	At            time.Time `json:"at"`
}

// Dispatch is the state machine of a single request. It is not shared between
// requests and not safe for concurrent use.
type Dispatch struct {
	CorrelationID string
	AgentID       string

	state   State
	failure *DispatchError
	history []Transition
	now     func() time.Time
}

// NewDispatch starts a state machine in StateReceived.
func NewDispatch(correlationID string) *Dispatch {
	d := &Dispatch{CorrelationID: correlationID, state: StateReceived, now: time.Now}
	d.history = append(d.history, Transition{CorrelationID: correlationID, To: StateReceived, At: d.now()})
	return d
}

// State returns the current state.
func (d *Dispatch) State() State { return d.state }

// History returns the transitions taken so far.
func (d *Dispatch) History() []Transition {
	out := make([]Transition, len(d.history))
	copy(out, d.history)
	return out
}

// Failure returns the recorded failure, or nil.
func (d *Dispatch) Failure() *DispatchError { return d.failure }

// Advance moves to the next state. Skipping or repeating a state is rejected.
func (d *Dispatch) Advance(to State) (Transition, error) {
	want, ok := next[d.state]
	if !ok || want != to {
		return Transition{}, NewDomainError("Dispatch.Advance", ErrInvalidTransition,
			fmt.Sprintf("%s -> %s", d.state, to))
	}
	t := Transition{CorrelationID: d.CorrelationID, From: d.state, To: to, AgentID: d.AgentID, At: d.now()}
	d.state = to
	d.history = append(d.history, t)
	return t, nil
}

// Fail moves to StateFailed and records cause against the stage that was running.
func (d *Dispatch) Fail(cause error) (Transition, *DispatchError) {
	stage, ok := stageFrom[d.state]
	if !ok {
		// Completed and failed dispatches cannot fail again; report against the last stage.
		stage = StageNormalize
	}
	d.failure = &DispatchError{
		Stage:         stage,
		CorrelationID: d.CorrelationID,
		AgentID:       d.AgentID,
		Err:           cause,
	}
	t := Transition{
		CorrelationID: d.CorrelationID,
		From:          d.state,
		To:            StateFailed,
		Stage:         stage,
		AgentID:       d.AgentID,
		Error:         cause.Error(),
		At:            d.now(),
	}
	d.state = StateFailed
	d.history = append(d.history, t)
	return t, d.failure
}
