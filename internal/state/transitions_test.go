package state

import "testing"

func TestIsTransitionAllowed(t *testing.T) {
	testCases := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{name: "idle to gift amount", from: StateIdle, to: StateGiftAmount, expected: true},
		{name: "gift amount to idle", from: StateGiftAmount, to: StateIdle, expected: true},
		{name: "gift amount picks another target", from: StateGiftAmount, to: StateGiftAmount, expected: true},
		{name: "error to gift amount invalid", from: StateError, to: StateGiftAmount, expected: false},
		{name: "unknown state to gift amount invalid", from: State("unknown"), to: StateGiftAmount, expected: false},
		{name: "any state to idle emergency", from: State("whatever"), to: StateIdle, expected: true},
		{name: "any state to error emergency", from: StateGiftAmount, to: StateError, expected: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if actual := IsTransitionAllowed(tc.from, tc.to); actual != tc.expected {
				t.Errorf("IsTransitionAllowed(%s -> %s) = %t, expected %t", tc.from, tc.to, actual, tc.expected)
			}
		})
	}
}
