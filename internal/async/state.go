// Package async models the lifecycle of one asynchronous operation as a single
// discriminated value.
package async

import "sync"

// Phase is the lifecycle stage of an operation.
type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Ticket identifies one started attempt.
type Ticket uint64

// Snapshot is a point-in-time copy of a State.
type Snapshot[T any] struct {
	Phase Phase
	Data  T
	Err   error
}

// State tracks the latest attempt of an operation. Only the most recently issued ticket may
// settle it; results delivered with an older ticket are dropped.
type State[T any] struct {
	mu     sync.RWMutex
	phase  Phase
	data   T
	err    error
	latest Ticket
}

// Begin moves the state to Loading and returns the ticket for this attempt. Data from the
// previous successful attempt is kept until the new one settles.
func (s *State[T]) Begin() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest++
	s.phase = Loading
	s.err = nil
	return s.latest
}

// Resolve settles the attempt successfully. It reports false when the ticket is stale.
func (s *State[T]) Resolve(ticket Ticket, data T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket != s.latest {
		return false
	}
	s.phase = Loaded
	s.data = data
	s.err = nil
	return true
}

// Reject settles the attempt with an error. It reports false when the ticket is stale.
func (s *State[T]) Reject(ticket Ticket, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket != s.latest {
		return false
	}
	s.phase = Failed
	s.err = err
	return true
}

// Reset returns the state to Idle and invalidates outstanding tickets.
func (s *State[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.latest++
	s.phase = Idle
	s.data = zero
	s.err = nil
}

// Snapshot returns the current phase, data and error together.
func (s *State[T]) Snapshot() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot[T]{Phase: s.phase, Data: s.data, Err: s.err}
}

// Phase returns the current phase.
func (s *State[T]) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}
