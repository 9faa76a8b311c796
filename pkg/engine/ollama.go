package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OllamaEngine adapts a local ollama server to the Facade contract. The
// server holds the model; the adapter holds the pending prompt content and
// drives the streaming chat call.
type OllamaEngine struct {
	mu sync.Mutex

	client  *api.Client
	cfg     Config
	handle  *Handle
	ready   chan struct{}
	initErr error

	texts  []string
	images []api.ImageData

	cancel context.CancelFunc
	active bool
}

type OllamaOption func(*OllamaEngine)

func WithClient(client *api.Client) OllamaOption {
	return func(e *OllamaEngine) {
		e.client = client
	}
}

func NewOllamaEngine(options ...OllamaOption) *OllamaEngine {
	ret := &OllamaEngine{
		ready: make(chan struct{}),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

var _ Facade = (*OllamaEngine)(nil)

func (e *OllamaEngine) Initialize(ctx context.Context, cfg Config) error {
	e.mu.Lock()
	e.cfg = cfg
	if e.client == nil {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			e.mu.Unlock()
			return errors.Wrap(err, "could not create ollama client")
		}
		e.client = client
	}
	client := e.client
	e.mu.Unlock()

	go func() {
		defer close(e.ready)

		if err := client.Heartbeat(ctx); err != nil {
			e.mu.Lock()
			e.initErr = errors.Wrap(err, "ollama server is not reachable")
			e.mu.Unlock()
			return
		}

		e.mu.Lock()
		e.handle = NewHandle()
		e.mu.Unlock()
		log.Debug().Str("model", cfg.Model).Msg("ollama engine ready")
	}()

	return nil
}

func (e *OllamaEngine) Ready() <-chan struct{} {
	return e.ready
}

func (e *OllamaEngine) Handle() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

func (e *OllamaEngine) InitErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

func (e *OllamaEngine) AttachText(h *Handle, text string) error {
	if h == nil {
		return ErrNilHandle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = append(e.texts, text)
	return nil
}

func (e *OllamaEngine) AttachImage(h *Handle, image []byte) error {
	if h == nil {
		return ErrNilHandle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images = append(e.images, api.ImageData(image))
	return nil
}

func (e *OllamaEngine) GenerateAsync(ctx context.Context, h *Handle, onPartial PartialFunc) (<-chan error, error) {
	if h == nil {
		return nil, ErrNilHandle
	}

	e.mu.Lock()
	if e.handle == nil {
		e.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if e.active {
		e.mu.Unlock()
		return nil, ErrGenerationActive
	}
	prompt := strings.Join(e.texts, "\n")
	images := e.images
	e.texts = nil
	e.images = nil

	stream := true
	req := &api.ChatRequest{
		Model: e.cfg.Model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  images,
			},
		},
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": e.cfg.Temperature,
			"top_k":       e.cfg.TopK,
			"top_p":       e.cfg.TopP,
			"num_predict": e.cfg.MaxTokens,
		},
	}

	genCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.active = true
	client := e.client
	e.mu.Unlock()

	genDone := make(chan error, 1)
	go func() {
		defer func() {
			e.mu.Lock()
			e.active = false
			e.cancel = nil
			e.mu.Unlock()
			cancel()
		}()

		err := client.Chat(genCtx, req, func(resp api.ChatResponse) error {
			onPartial(resp.Message.Content, resp.Done)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("model", e.cfg.Model).Msg("ollama chat failed")
			genDone <- errors.Wrap(err, "ollama chat failed")
			return
		}
		genDone <- err
	}()

	return genDone, nil
}

func (e *OllamaEngine) Cancel(h *Handle) {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ResetSession drops any pending prompt content and issues a fresh handle.
// The ollama server keeps no per-connection conversation state, so
// recreation amounts to verifying the server is still alive.
func (e *OllamaEngine) ResetSession(ctx context.Context, h *Handle) (*Handle, error) {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()

	if client == nil {
		return nil, ErrNotInitialized
	}
	if err := client.Heartbeat(ctx); err != nil {
		return nil, errors.Wrap(err, "could not reset ollama session")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = nil
	e.images = nil
	e.handle = NewHandle()
	return e.handle, nil
}

func (e *OllamaEngine) Close() error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
