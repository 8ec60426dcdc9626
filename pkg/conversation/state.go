package conversation

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by TransitionState for an illegal edge.
var ErrInvalidTransition = errors.New("conversation: invalid state transition")

// State is a node of the conversation state machine.
type State string

const (
	StateAwaitingModel  State = "awaiting_model"
	StateModelReplied   State = "model_replied"
	StateExecutingTools State = "executing_tools"
	StateTerminal       State = "terminal"
)

var allowedTransitions = map[State]map[State]struct{}{
	StateAwaitingModel: {
		StateModelReplied: {},
		StateTerminal:     {},
	},
	StateModelReplied: {
		StateExecutingTools: {},
		StateTerminal:       {},
	},
	StateExecutingTools: {
		StateAwaitingModel: {},
		StateTerminal:      {},
	},
	StateTerminal: {},
}

// TransitionState validates the edge from -> to and returns the new state.
func TransitionState(from, to State) (State, error) {
	allowed, ok := allowedTransitions[from]
	if !ok {
		return from, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, from)
	}
	if _, ok := allowed[to]; !ok {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// IsTerminal reports whether s has no outgoing edges.
func (s State) IsTerminal() bool {
	return s == StateTerminal
}
