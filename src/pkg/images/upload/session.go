package upload

import (
	"context"
	"sync"
	"time"
)

type State int

const (
	// StateUploading: the HTTP call is in flight.
	StateUploading State = iota
	// StateSettling: the call returned, the settle delay is running.
	StateSettling
	// StateIdle: the session no longer counts as busy.
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateUploading:
		return "uploading"
	case StateSettling:
		return "settling"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Session is the handle of one upload. It is busy from Start until the settle
// delay has passed after the call returned.
type Session struct {
	ID        string
	Name      string
	StartedAt time.Time

	mu         sync.Mutex
	state      State
	result     *Result
	err        error
	finishedAt time.Time
	settled    chan struct{}
	idle       chan struct{}
}

func newSession(id, name string) *Session {
	return &Session{
		ID:        id,
		Name:      name,
		StartedAt: time.Now(),
		state:     StateUploading,
		settled:   make(chan struct{}),
		idle:      make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Busy() bool {
	return s.State() != StateIdle
}

// Settled is closed once the HTTP call has returned.
func (s *Session) Settled() <-chan struct{} {
	return s.settled
}

// Idle is closed once the settle delay has passed.
func (s *Session) Idle() <-chan struct{} {
	return s.idle
}

// Result is only meaningful after Settled is closed.
func (s *Session) Result() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

func (s *Session) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

// Wait blocks until the call has returned or ctx is done.
func (s *Session) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-s.settled:
		return s.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) finish(result *Result, err error) {
	s.mu.Lock()
	s.result = result
	s.err = err
	s.finishedAt = time.Now()
	s.state = StateSettling
	s.mu.Unlock()
	close(s.settled)
}

func (s *Session) markIdle() {
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	close(s.idle)
}
