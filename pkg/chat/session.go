package chat

import (
	"sync"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/bench"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/engine"
)

type SessionState string

const (
	SessionStateCreated   SessionState = "created"
	SessionStateActive    SessionState = "active"
	SessionStateResetting SessionState = "resetting"
	SessionStateDestroyed SessionState = "destroyed"
)

// ModelSession binds one model to its engine facade and session handle.
// Exactly one exists per registered model; the orchestrator owns it
// exclusively.
//
// turnMu serializes generation against session reset: a turn worker holds it
// for the whole turn, a reset holds it for the whole recovery loop. mu only
// guards the mutable fields.
type ModelSession struct {
	model  string
	facade engine.Facade

	turnMu sync.Mutex

	mu      sync.Mutex
	handle  *engine.Handle
	state   SessionState
	current *activeTurn

	// cleanup releases the engine when the session is destroyed. Each
	// session carries its own closure; there is no process-wide registry.
	cleanup func()
}

func (s *ModelSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ModelSession) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *ModelSession) Handle() *engine.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *ModelSession) setHandle(h *engine.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

func (s *ModelSession) activeTurn() *activeTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *ModelSession) setActiveTurn(at *activeTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = at
}

// activeTurn is the per-turn streaming state shared between the worker
// goroutine, the engine callback and Cancel.
type activeTurn struct {
	handle   *TurnHandle
	recorder *bench.Recorder

	mu             sync.Mutex
	completion     string
	sawFirst       bool
	terminal       bool
	loadingPresent bool

	done     chan struct{}
	doneOnce sync.Once
}

func newActiveTurn(h *TurnHandle) *activeTurn {
	return &activeTurn{
		handle: h,
		done:   make(chan struct{}),
	}
}

func (at *activeTurn) signalDone() {
	at.doneOnce.Do(func() {
		close(at.done)
	})
}
