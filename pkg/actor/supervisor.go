package actor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"near-intents/pkg/intent"
	"near-intents/pkg/logger"
)

// RunFunc is the body of a child actor. It returns when the child reaches a terminal state.
type RunFunc func(ctx context.Context) error

// ExitFunc is told when a child stops. err is an *intent.Error with code
// ACTOR_CRASHED when the child panicked.
type ExitFunc func(key string, err error)

// Supervisor owns an arena of children addressed by correlation key.
// Children are removed from the arena as soon as their RunFunc returns.
type Supervisor[C any] struct {
	mu       sync.Mutex
	children map[string]C
	wg       sync.WaitGroup
	onExit   ExitFunc
	log      *slog.Logger
}

// NewSupervisor creates an empty arena. onExit may be nil.
func NewSupervisor[C any](name string, onExit ExitFunc) *Supervisor[C] {
	return &Supervisor[C]{
		children: make(map[string]C),
		onExit:   onExit,
		log:      logger.Named(name),
	}
}

// Spawn registers child under key and starts run in its own goroutine.
func (s *Supervisor[C]) Spawn(ctx context.Context, key string, child C, run RunFunc) error {
	s.mu.Lock()
	if _, exists := s.children[key]; exists {
		s.mu.Unlock()
		return fmt.Errorf("child %q already running", key)
	}
	s.children[key] = child
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Debug("child spawned", slog.String("key", key))
	go func() {
		defer s.wg.Done()
		err := s.runGuarded(ctx, key, run)

		s.mu.Lock()
		delete(s.children, key)
		s.mu.Unlock()

		s.log.Debug("child stopped", slog.String("key", key), slog.Any("err", err))
		if s.onExit != nil {
			s.onExit(key, err)
		}
	}()
	return nil
}

func (s *Supervisor[C]) runGuarded(ctx context.Context, key string, run RunFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("child panicked", slog.String("key", key), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = intent.NewError(intent.CodeActorCrashed, fmt.Sprintf("actor %s crashed: %v", key, r))
		}
	}()
	return run(ctx)
}

// Get returns the child registered under key.
func (s *Supervisor[C]) Get(key string) (C, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.children[key]
	return c, ok
}

// Keys returns the live keys in sorted order.
func (s *Supervisor[C]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.children))
	for k := range s.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Supervisor[C]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children)
}

// Wait blocks until every spawned child has stopped.
func (s *Supervisor[C]) Wait() {
	s.wg.Wait()
}
