package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// EchoEngine is an in-process engine that replays the attached prompt (or a
// canned reply) one rune at a time. It exists for tests and for exercising
// the full turn pipeline without a model backend.
type EchoEngine struct {
	// TimePerToken is the delay between stream fragments.
	TimePerToken time.Duration
	// InitDelay is how long initialization takes before the handle appears.
	InitDelay time.Duration
	// Reply overrides echoing the attached prompt when non-empty.
	Reply string
	// ResetFailures makes the first N ResetSession calls fail, to drive the
	// recovery loop.
	ResetFailures int
	// StrayAfterCancel makes the engine deliver one extra fragment after a
	// cancel request, mimicking backends whose in-flight callback cannot be
	// recalled.
	StrayAfterCancel bool

	mu      sync.Mutex
	cfg     Config
	handle  *Handle
	ready   chan struct{}
	initErr error
	texts   []string
	images  int
	resets  int
	gen     *echoGeneration
}

// echoGeneration is the state of one streaming call. Cancellation is scoped
// to the generation so a doomed stream cannot be revived by a session reset.
type echoGeneration struct {
	mu        sync.Mutex
	cancelled bool
	eg        *errgroup.Group
}

func (g *echoGeneration) cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = true
}

func (g *echoGeneration) isCancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}

func NewEchoEngine() *EchoEngine {
	return &EchoEngine{
		TimePerToken: time.Millisecond,
		ready:        make(chan struct{}),
	}
}

var _ Facade = (*EchoEngine)(nil)

func (e *EchoEngine) Initialize(ctx context.Context, cfg Config) error {
	e.mu.Lock()
	e.cfg = cfg
	delay := e.InitDelay
	e.mu.Unlock()

	go func() {
		if delay > 0 {
			select {
			case <-ctx.Done():
				e.mu.Lock()
				e.initErr = ctx.Err()
				e.mu.Unlock()
				close(e.ready)
				return
			case <-time.After(delay):
			}
		}
		e.mu.Lock()
		e.handle = NewHandle()
		e.mu.Unlock()
		close(e.ready)
	}()

	return nil
}

func (e *EchoEngine) Ready() <-chan struct{} {
	return e.ready
}

func (e *EchoEngine) Handle() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

func (e *EchoEngine) InitErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

func (e *EchoEngine) AttachText(h *Handle, text string) error {
	if h == nil {
		return ErrNilHandle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = append(e.texts, text)
	return nil
}

func (e *EchoEngine) AttachImage(h *Handle, image []byte) error {
	if h == nil {
		return ErrNilHandle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images++
	return nil
}

func (e *EchoEngine) GenerateAsync(ctx context.Context, h *Handle, onPartial PartialFunc) (<-chan error, error) {
	if h == nil {
		return nil, ErrNilHandle
	}

	e.mu.Lock()
	if e.handle == nil {
		e.mu.Unlock()
		return nil, ErrNotInitialized
	}
	prev := e.gen
	e.mu.Unlock()

	// a cancelled stream may still be draining its last fragment
	if prev != nil {
		_ = prev.eg.Wait()
	}

	e.mu.Lock()
	reply := e.Reply
	if reply == "" {
		reply = strings.Join(e.texts, "\n")
	}
	e.texts = nil
	e.images = 0

	eg, ctx := errgroup.WithContext(ctx)
	gen := &echoGeneration{eg: eg}
	e.gen = gen
	e.mu.Unlock()

	eg.Go(func() error {
		for _, r := range reply {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.TimePerToken):
			}

			if gen.isCancelled() {
				if e.StrayAfterCancel {
					// one last fragment slips out after the cancel request
					onPartial(string(r), false)
				}
				return nil
			}

			onPartial(string(r), false)
		}

		if !gen.isCancelled() {
			onPartial("", true)
		}
		return nil
	})

	genDone := make(chan error, 1)
	go func() {
		genDone <- eg.Wait()
	}()

	return genDone, nil
}

func (e *EchoEngine) Cancel(h *Handle) {
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	if gen != nil {
		gen.cancel()
	}
}

func (e *EchoEngine) ResetSession(ctx context.Context, h *Handle) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resets++
	if e.resets <= e.ResetFailures {
		log.Debug().Int("attempt", e.resets).Msg("echo engine refusing reset")
		return nil, errors.Errorf("reset attempt %d failed", e.resets)
	}

	if e.gen != nil {
		e.gen.cancel()
	}
	e.texts = nil
	e.images = 0
	e.handle = NewHandle()
	return e.handle, nil
}

// ResetAttempts reports how many ResetSession calls the engine has seen.
func (e *EchoEngine) ResetAttempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}

func (e *EchoEngine) Close() error {
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	if gen != nil {
		gen.cancel()
		_ = gen.eg.Wait()
	}
	return nil
}
