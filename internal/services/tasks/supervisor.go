// Package tasks holds single-slot supervisors for cancellable background work.
package tasks

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrSuperseded is the cancellation cause of a unit replaced by a newer Start.
	ErrSuperseded = errors.New("superseded by a newer task")
	// ErrCancelled is the cancellation cause of a unit stopped through Cancel.
	ErrCancelled = errors.New("cancelled by request")
)

// Work is one cancellable unit. It must return promptly once ctx is done.
type Work func(ctx context.Context)

type unit struct {
	id     uint64
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Supervisor holds at most one running unit of work.
type Supervisor struct {
	mu      sync.Mutex
	current *unit
	nextID  uint64
}

// Start cancels the running unit, if any, without waiting for it, then runs
// work in a new goroutine. The returned channel closes once work has returned
// and its slot has been released.
func (s *Supervisor) Start(parent context.Context, work Work) <-chan struct{} {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)

	s.mu.Lock()
	if s.current != nil {
		s.current.cancel(ErrSuperseded)
	}
	s.nextID++
	u := &unit{id: s.nextID, cancel: cancel, done: make(chan struct{})}
	s.current = u
	s.mu.Unlock()

	go func() {
		defer close(u.done)
		defer s.clear(u)
		work(ctx)
	}()
	return u.done
}

// Cancel requests cancellation of the running unit. It is a no-op when idle.
func (s *Supervisor) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.cancel(ErrCancelled)
	}
}

// Running reports whether a unit currently occupies the slot.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Done returns the completion channel of the running unit, or nil when idle.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.done
}

// Commit runs fn while holding the slot, only if ctx is still live. Because
// Start cancels the previous unit under the same lock, a unit that has been
// superseded or cancelled can never commit afterwards.
func (s *Supervisor) Commit(ctx context.Context, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

// clear releases the slot if u still owns it and always stops u's context.
func (s *Supervisor) clear(u *unit) {
	s.mu.Lock()
	if s.current == u {
		s.current = nil
	}
	s.mu.Unlock()
	u.cancel(context.Canceled)
}

// Superseded reports whether ctx was cancelled because a newer unit started.
func Superseded(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrSuperseded)
}
