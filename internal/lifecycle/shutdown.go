package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Shutdown runs registered hooks once the process is asked to stop. Drain hooks, which stop
// intake and wait for work in flight, all finish before any other hook starts; within a phase
// hooks run in parallel.
type Shutdown struct {
	log *slog.Logger

	mu     sync.Mutex
	drains []Hook
	hooks  []Hook
}

// NewShutdown constructs a new Shutdown coordinator.
func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}
	return &Shutdown{log: log}
}

// Register adds a named shutdown hook. A nil fn is ignored.
func (s *Shutdown) Register(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	s.hooks = append(s.hooks, Hook{Name: name, Fn: fn})
	s.mu.Unlock()
}

// RegisterDrain adds a hook that runs before the ordinary hooks, such as stopping the update
// loop before the store it writes to is closed. A nil fn is ignored.
func (s *Shutdown) RegisterDrain(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	s.drains = append(s.drains, Hook{Name: name, Fn: fn})
	s.mu.Unlock()
}

// Execute runs every hook and waits for all of them, even after one fails. The returned error
// joins the failures, each prefixed with its hook name. ctx bounds the whole sequence.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	drains := append([]Hook(nil), s.drains...)
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	s.log.Info("shutdown sequence started", slog.Int("hook_count", len(drains)+len(hooks)))
	start := time.Now()

	err := errors.Join(s.runAll(ctx, drains), s.runAll(ctx, hooks))

	s.log.Info("shutdown sequence finished", slog.Duration("elapsed", time.Since(start)))
	return err
}

func (s *Shutdown) runAll(ctx context.Context, hooks []Hook) error {
	failures := make([]error, len(hooks))
	var wg sync.WaitGroup
	for i, h := range hooks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			failures[i] = s.run(ctx, h)
		}()
	}
	wg.Wait()
	return errors.Join(failures...)
}

func (s *Shutdown) run(ctx context.Context, h Hook) error {
	log := s.log.With(slog.String("hook", h.Name))
	log.Debug("running shutdown hook")

	began := time.Now()
	if err := h.Fn(ctx); err != nil {
		log.Error("shutdown hook failed", slog.Any("error", err))
		return fmt.Errorf("%s: %w", h.Name, err)
	}

	log.Info("shutdown hook completed", slog.Duration("elapsed", time.Since(began)))
	return nil
}
