package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotInitialized   = errors.New("engine is not initialized")
	ErrNilHandle        = errors.New("engine handle is nil")
	ErrGenerationActive = errors.New("engine already has an active generation")
)

type Accelerator string

const (
	AcceleratorCPU Accelerator = "cpu"
	AcceleratorGPU Accelerator = "gpu"
)

// Config is passed through to the backend untouched; the orchestrator does
// not interpret it.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	TopK        int
	TopP        float64
	Accelerator Accelerator
}

// Handle is the opaque session handle an initialized engine hands out. A new
// handle is issued on every session recreation.
type Handle struct {
	ID string
}

func NewHandle() *Handle {
	return &Handle{ID: uuid.NewString()}
}

// PartialFunc receives one stream fragment. Exactly one invocation per
// generation carries done=true; fragments arrive strictly in order.
type PartialFunc func(text string, done bool)

// Facade is the external-facing abstraction over a local, stateful
// generation backend.
//
// Initialization is asynchronous: Initialize returns quickly and the handle
// becomes available later. Ready is the completion signal; Handle returning
// non-nil is the portable polling fallback. After Ready is closed, a nil
// Handle together with a non-nil InitErr means initialization failed.
//
// GenerateAsync returns a channel that receives the stream's terminal error
// exactly once, after the backend call finishes. A nil value means the
// stream ended normally and the done callback has already fired; a non-nil
// value means the generation failed mid-stream and no done callback will
// ever arrive.
//
// Cancel is cooperative: a single callback may still arrive after a cancel
// request, and callers must tolerate it.
type Facade interface {
	Initialize(ctx context.Context, cfg Config) error
	Ready() <-chan struct{}
	Handle() *Handle
	InitErr() error

	AttachText(h *Handle, text string) error
	AttachImage(h *Handle, image []byte) error

	GenerateAsync(ctx context.Context, h *Handle, onPartial PartialFunc) (<-chan error, error)
	Cancel(h *Handle)

	ResetSession(ctx context.Context, h *Handle) (*Handle, error)
	Close() error
}
