package engine

import (
	"fmt"

	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// StateTransitions maps states to their set of valid next states
type StateTransitions[T comparable] map[T]map[T]bool

var sessionTransitions = StateTransitions[api.SessionStatus]{
	api.SessionRunning: {
		api.SessionAwaiting:  true,
		api.SessionCompleted: true,
		api.SessionExhausted: true,
		api.SessionFailed:    true,
	},
	api.SessionAwaiting: {
		api.SessionRunning: true,
	},
	api.SessionCompleted: {},
	api.SessionExhausted: {},
	api.SessionFailed:    {},
}

// CanTransition returns whether transition from one state to another is
// valid. Staying in the same state is always allowed
func (t StateTransitions[T]) CanTransition(from, to T) bool {
	if from == to {
		return true
	}
	return t[from][to]
}

func setStatus(st *api.WorkflowState, to api.SessionStatus) error {
	if !sessionTransitions.CanTransition(st.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, st.Status, to)
	}
	st.Status = to
	return nil
}
