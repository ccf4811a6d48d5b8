package runtime

import (
	"errors"
	"fmt"
)

// State is a step of an item's execution.
type State int

const (
	StateReceived State = iota
	StateEvaluating
	StateSkipped
	StateExecuting
	StatePublishing
	StateAcked
	StateFailed
)

var stateNames = map[State]string{
	StateReceived:   "received",
	StateEvaluating: "evaluating",
	StateSkipped:    "skipped",
	StateExecuting:  "executing",
	StatePublishing: "publishing",
	StateAcked:      "acked",
	StateFailed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// ErrIllegalTransition is returned when an execution is moved out of order.
var ErrIllegalTransition = errors.New("docflow: illegal execution transition")

var transitions = map[State][]State{
	StateReceived:   {StateEvaluating, StateFailed},
	StateEvaluating: {StateSkipped, StateExecuting, StateFailed},
	StateExecuting:  {StatePublishing, StateFailed},
	StatePublishing: {StateAcked, StateFailed},
}

// execution tracks one item through its states. It is owned by a single
// goroutine.
type execution struct {
	state   State
	history []State
}

func newExecution() *execution {
	return &execution{state: StateReceived, history: []State{StateReceived}}
}

func (e *execution) State() State { return e.state }

func (e *execution) advance(to State) error {
	for _, allowed := range transitions[e.state] {
		if allowed == to {
			e.state = to
			e.history = append(e.history, to)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, e.state, to)
}

// fail moves the execution to StateFailed from any non-terminal state.
func (e *execution) fail() {
	if !e.state.Terminal() {
		_ = e.advance(StateFailed)
	}
}
