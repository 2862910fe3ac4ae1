package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/Proton-105/candy-heist/internal/bot/handlers"
	"github.com/Proton-105/candy-heist/internal/state"
)

// Dispatcher picks the handler for free text based on the sender's conversation state.
type Dispatcher struct {
	fsm state.StateMachine

	mu     sync.RWMutex
	byStep map[state.State]handlers.Handler
}

// NewDispatcher creates a Dispatcher with no state handlers.
func NewDispatcher(fsm state.StateMachine) *Dispatcher {
	return &Dispatcher{fsm: fsm, byStep: make(map[state.State]handlers.Handler)}
}

// RegisterStateHandler makes h receive text from users in state s.
func (d *Dispatcher) RegisterStateHandler(s state.State, h handlers.Handler) {
	d.mu.Lock()
	d.byStep[s] = h
	d.mu.Unlock()
}

// HandlerFor returns the handler for the user's current state. Users outside any flow, and
// states nobody registered, yield nil.
func (d *Dispatcher) HandlerFor(ctx context.Context, userID int64) (handlers.Handler, error) {
	if d == nil || d.fsm == nil {
		return nil, nil
	}

	current, err := d.fsm.GetState(ctx, userID)
	if errors.Is(err, state.ErrStateNotFound) || (err == nil && current == nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byStep[current.CurrentState], nil
}
