package state

import "slices"

// Flows only move forward through their steps. Idle and Error can be entered from anywhere so a
// stuck user can always be reset.
var flowSteps = map[State][]State{
	StateIdle:       {StateGiftAmount},
	StateGiftAmount: {StateGiftAmount, StateIdle},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
func IsTransitionAllowed(from, to State) bool {
	switch to {
	case StateIdle, StateError:
		return true
	}
	return slices.Contains(flowSteps[from], to)
}
