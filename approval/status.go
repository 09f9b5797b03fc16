package approval

import "errors"

type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StatePaid     State = "paid"
)

// ErrInvalidTransition signals a workflow transition attempted from a state
// that does not permit it. The record is left unchanged.
var ErrInvalidTransition = errors.New("approval: invalid state transition")

// transitions enumerates the allowed edges of the request lifecycle:
// pending -> approved -> paid, with pending -> rejected as the alternate
// terminal path. Paid and rejected have no outgoing edges.
var transitions = map[State][]State{
	StatePending:  {StateApproved, StateRejected},
	StateApproved: {StatePaid},
}

// CanTransition reports whether moving from one state to the other is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidState reports whether s is a known lifecycle state.
func ValidState(s State) bool {
	switch s {
	case StatePending, StateApproved, StateRejected, StatePaid:
		return true
	default:
		return false
	}
}

// Terminal reports whether a state has no outgoing transitions.
func Terminal(s State) bool {
	return len(transitions[s]) == 0
}
