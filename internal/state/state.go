package state

import "time"

// State represents a finite-state machine state.
type State string

const (
	// StateIdle indicates that the bot is waiting for the next user command.
	StateIdle State = "idle"
	// StateGiftAmount indicates that the user picked a gift recipient and is typing the amount.
	StateGiftAmount State = "gift_amount"
	// StateError indicates that the bot is in an error state and requires recovery.
	StateError State = "error"
)

// Context keys used by the gift flow.
const (
	KeyTargetID   = "target_id"
	KeyTargetName = "target_name"
)

// UserState captures the current FSM state for a Telegram user.
type UserState struct {
	UserID       int64             `json:"user_id"`
	CurrentState State             `json:"current_state"`
	Context      map[string]string `json:"context"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Value returns a context value, or "" when the state or key is missing.
func (s *UserState) Value(key string) string {
	if s == nil || s.Context == nil {
		return ""
	}
	return s.Context[key]
}
