package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one user request: text plus optional image payload and optional
// attachment reference. Immutable once submitted.
type Turn struct {
	ID            string
	Model         string
	Text          string
	Image         []byte
	AttachmentRef string
	CreatedAt     time.Time
}

type TurnOption func(*Turn)

func WithImage(image []byte) TurnOption {
	return func(t *Turn) {
		t.Image = image
	}
}

func WithAttachment(ref string) TurnOption {
	return func(t *Turn) {
		t.AttachmentRef = ref
	}
}

func NewTurn(model, text string, options ...TurnOption) Turn {
	ret := Turn{
		ID:        uuid.NewString(),
		Model:     model,
		Text:      text,
		CreatedAt: time.Now(),
	}
	for _, option := range options {
		option(&ret)
	}
	return ret
}

type TurnState string

const (
	TurnStateIdle      TurnState = "idle"
	TurnStatePreparing TurnState = "preparing"
	TurnStateStreaming TurnState = "streaming"
	TurnStateCompleted TurnState = "completed"
	TurnStateCancelled TurnState = "cancelled"
	TurnStateFailed    TurnState = "failed"
)

func (s TurnState) Terminal() bool {
	switch s {
	case TurnStateCompleted, TurnStateCancelled, TurnStateFailed:
		return true
	}
	return false
}

// TurnHandle tracks one submitted turn through its life cycle. The worker
// goroutine owns the transitions; callers observe state and wait for the
// terminal event.
type TurnHandle struct {
	TurnID string

	mu    sync.Mutex
	state TurnState
	err   error

	done     chan struct{}
	doneOnce sync.Once
}

func newTurnHandle(turnID string) *TurnHandle {
	return &TurnHandle{
		TurnID: turnID,
		state:  TurnStateIdle,
		done:   make(chan struct{}),
	}
}

func (h *TurnHandle) State() TurnState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *TurnHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Done is closed when the turn reaches a terminal state.
func (h *TurnHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the turn terminates or ctx expires, returning the turn's
// error, if any.
func (h *TurnHandle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.Err()
	}
}

func (h *TurnHandle) setState(s TurnState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return
	}
	h.state = s
}

func (h *TurnHandle) finish(s TurnState, err error) {
	h.mu.Lock()
	if !h.state.Terminal() {
		h.state = s
		h.err = err
	}
	h.mu.Unlock()
	h.doneOnce.Do(func() {
		close(h.done)
	})
}
