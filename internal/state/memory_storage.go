package state

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage keeps FSM states in process memory. Entries older than the TTL are dropped
// when read and by Sweep.
type MemoryStorage struct {
	mu     sync.Mutex
	states map[int64]*UserState
	ttl    time.Duration
	now    func() time.Time
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage returns an empty MemoryStorage. ttl <= 0 selects DefaultTTL.
func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStorage{
		states: make(map[int64]*UserState),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *MemoryStorage) GetState(_ context.Context, userID int64) (*UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, ErrStateNotFound
	}
	if s.expired(state) {
		delete(s.states, userID)
		return nil, ErrStateNotFound
	}

	return cloneState(state), nil
}

func (s *MemoryStorage) SetState(_ context.Context, userID int64, state *UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.UpdatedAt = s.now().UTC()
	s.states[userID] = cloneState(state)
	return nil
}

func (s *MemoryStorage) ClearState(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, userID)
	return nil
}

// Sweep drops every expired state and reports how many were removed.
func (s *MemoryStorage) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.states {
		if s.expired(state) {
			delete(s.states, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStorage) expired(state *UserState) bool {
	return s.now().Sub(state.UpdatedAt) > s.ttl
}

func cloneState(state *UserState) *UserState {
	if state == nil {
		return nil
	}

	copyState := *state
	if state.Context != nil {
		ctxCopy := make(map[string]string, len(state.Context))
		for k, v := range state.Context {
			ctxCopy[k] = v
		}
		copyState.Context = ctxCopy
	}
	return &copyState
}
