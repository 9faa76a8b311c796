package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/bench"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/engine"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/events"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/ingest"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/settings"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/transcript"
)

var (
	ErrUnknownModel     = errors.New("model is not registered")
	ErrModelRegistered  = errors.New("model is already registered")
	ErrSessionDestroyed = errors.New("session is destroyed")
	errTurnInterrupted  = errors.New("turn interrupted")
)

// Orchestrator composes ingestion, readiness polling, streaming callbacks,
// cancellation and session recreation into the end-to-end turn life cycle.
//
// Turn processing for one model runs on its own worker goroutine per
// Generate call; multiple models can stream concurrently. Generation and
// session reset for the same model are mutually exclusive.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[string]*ModelSession

	sink     transcript.MessageSink
	sinks    *events.SinkManager
	ingestor *ingest.Ingestor
	cfg      *settings.Settings
	logger   zerolog.Logger
}

type OrchestratorOption func(*Orchestrator)

func WithEventSink(sink events.EventSink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sinks.AddSink(sink)
	}
}

func WithSettings(cfg *settings.Settings) OrchestratorOption {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

func WithIngestor(ing *ingest.Ingestor) OrchestratorOption {
	return func(o *Orchestrator) {
		o.ingestor = ing
	}
}

func WithLogger(logger zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func NewOrchestrator(sink transcript.MessageSink, options ...OrchestratorOption) *Orchestrator {
	ret := &Orchestrator{
		sessions: map[string]*ModelSession{},
		sink:     sink,
		sinks:    events.NewSinkManager(),
		ingestor: ingest.NewIngestor(),
		cfg:      settings.Default(),
		logger:   log.Logger,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// RegisterModel initializes the engine for a model and creates its session.
// Initialization completes asynchronously; Generate waits for readiness.
func (o *Orchestrator) RegisterModel(ctx context.Context, model string, facade engine.Facade) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.sessions[model]; ok {
		return errors.Wrap(ErrModelRegistered, model)
	}

	cfg := engine.Config{
		Model:       model,
		MaxTokens:   o.cfg.Generation.MaxTokens,
		Temperature: o.cfg.Generation.Temperature,
		TopK:        o.cfg.Generation.TopK,
		TopP:        o.cfg.Generation.TopP,
		Accelerator: engine.Accelerator(o.cfg.Generation.Accelerator),
	}
	if err := facade.Initialize(ctx, cfg); err != nil {
		return errors.Wrapf(err, "could not initialize engine for model %s", model)
	}

	o.sessions[model] = &ModelSession{
		model:  model,
		facade: facade,
		state:  SessionStateCreated,
		cleanup: func() {
			if err := facade.Close(); err != nil {
				o.logger.Warn().Err(err).Str("model", model).Msg("engine close failed")
			}
		},
	}
	o.logger.Info().Str("model", model).Msg("model registered")
	return nil
}

// Session returns the session for a model, mainly for hosts and tests.
func (o *Orchestrator) Session(model string) (*ModelSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[model]
	return s, ok
}

// DestroyModel cancels any in-flight generation, releases the engine and
// forgets the session.
func (o *Orchestrator) DestroyModel(model string) {
	o.Cancel(model)

	o.mu.Lock()
	sess, ok := o.sessions[model]
	if ok {
		delete(o.sessions, model)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()
	sess.setState(SessionStateDestroyed)
	if sess.cleanup != nil {
		sess.cleanup()
	}
	o.logger.Info().Str("model", model).Msg("model destroyed")
}

// Generate submits a turn. It returns immediately with a handle; the turn
// runs on a background worker. onError is invoked on setup or engine
// failures and may be nil.
func (o *Orchestrator) Generate(ctx context.Context, turn Turn, onError func(error)) (*TurnHandle, error) {
	o.mu.Lock()
	sess, ok := o.sessions[turn.Model]
	o.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(ErrUnknownModel, turn.Model)
	}
	if sess.State() == SessionStateDestroyed {
		return nil, errors.Wrap(ErrSessionDestroyed, turn.Model)
	}

	if turn.ID == "" {
		turn.ID = NewTurn(turn.Model, turn.Text).ID
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	handle := newTurnHandle(turn.ID)
	go o.runTurn(ctx, sess, turn, handle, onError)
	return handle, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *ModelSession, turn Turn, handle *TurnHandle, onError func(error)) {
	// generation and reset for the same model never overlap
	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	at := newActiveTurn(handle)
	sess.setActiveTurn(at)
	defer sess.setActiveTurn(nil)

	handle.setState(TurnStatePreparing)
	logger := o.logger.With().Str("model", turn.Model).Str("turn_id", turn.ID).Logger()

	prompt := o.ingestAttachment(ctx, turn, logger)

	// the terminal check, the placeholder append and the flag set are one
	// atomic step: Cancel either prevents the placeholder from appearing or
	// is guaranteed to see loadingPresent and remove it
	at.mu.Lock()
	if at.terminal {
		// cancelled during ingestion
		at.mu.Unlock()
		return
	}
	o.sink.Append(turn.Model, transcript.NewLoadingEntry(
		transcript.WithAccelerator(o.cfg.Generation.Accelerator),
	))
	at.loadingPresent = true
	at.mu.Unlock()

	prefillTokens := bench.EstimateTokens(prompt, len(turn.Image) > 0, o.cfg.Bench.ImageTokenCost)
	at.recorder = bench.NewRecorder(prefillTokens, time.Now())
	logger.Debug().Int("prefill_tokens", prefillTokens).Msg("turn prepared")

	if err := o.waitReady(ctx, sess, at); err != nil {
		if errors.Is(err, errTurnInterrupted) {
			return
		}
		o.failTurn(sess, at, turn, err, onError)
		return
	}
	sess.setHandle(sess.facade.Handle())
	sess.setState(SessionStateActive)

	// warm-up before the generation call, so engine initialization has fully
	// settled into the session fields
	if err := o.sleep(ctx, at, o.cfg.Orchestration.WarmupDelay); err != nil {
		if errors.Is(err, errTurnInterrupted) {
			return
		}
		o.failTurn(sess, at, turn, err, onError)
		return
	}

	engineHandle := sess.Handle()
	if err := sess.facade.AttachText(engineHandle, prompt); err != nil {
		o.failTurn(sess, at, turn, err, onError)
		return
	}
	if len(turn.Image) > 0 {
		if err := sess.facade.AttachImage(engineHandle, turn.Image); err != nil {
			o.failTurn(sess, at, turn, err, onError)
			return
		}
	}

	meta := events.NewMetadata(turn.Model, turn.ID, engineHandle.ID)
	o.sinks.PublishBlind(events.NewStartEvent(meta, prefillTokens))

	genDone, err := sess.facade.GenerateAsync(ctx, engineHandle, o.onPartial(sess, at, turn, meta))
	if err != nil {
		o.failTurn(sess, at, turn, err, onError)
		return
	}

	for {
		select {
		case <-at.done:
			return
		case <-ctx.Done():
			o.cancelTurn(sess, at, turn.Model)
			return
		case err := <-genDone:
			if err == nil {
				// the stream ended normally; the done callback signals
				// at.done
				genDone = nil
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				o.cancelTurn(sess, at, turn.Model)
				return
			}
			o.failTurn(sess, at, turn, err, onError)
			return
		}
	}
}

// ingestAttachment resolves and decodes the turn's attachment, returning the
// final prompt. Failures are downgraded to a warning entry and the user text
// is returned unchanged. The document entry is always appended before any
// read attempt so the attachment stays visible even when decoding fails.
func (o *Orchestrator) ingestAttachment(ctx context.Context, turn Turn, logger zerolog.Logger) string {
	if turn.AttachmentRef == "" {
		return turn.Text
	}

	filename := ingest.FilenameForRef(turn.AttachmentRef)
	o.sink.Append(turn.Model, transcript.NewDocumentEntry(filename))

	att, err := o.ingestor.Resolve(ctx, turn.AttachmentRef)
	if err != nil {
		logger.Warn().Err(err).Str("filename", filename).Msg("attachment could not be resolved")
		o.appendIngestWarning(turn.Model, filename, err)
		return turn.Text
	}

	text, err := o.ingestor.Decode(att)
	if err != nil {
		o.appendIngestWarning(turn.Model, att.Filename, err)
		return turn.Text
	}

	return ingest.Prompt(text, turn.Text)
}

func (o *Orchestrator) appendIngestWarning(model, filename string, err error) {
	o.sink.Append(model, transcript.NewWarningEntry(
		fmt.Sprintf("could not read attachment %s: %s", filename, err),
		transcript.WithFilename(filename),
	))
}

// waitReady blocks until the engine handle for the session's model exists.
// The facade's readiness signal is preferred; a fixed-interval poll of the
// handle is kept as a portability fallback.
func (o *Orchestrator) waitReady(ctx context.Context, sess *ModelSession, at *activeTurn) error {
	if sess.facade.Handle() != nil {
		return nil
	}

	ticker := time.NewTicker(o.cfg.Orchestration.ReadinessPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-at.done:
			return errTurnInterrupted
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.facade.Ready():
			if err := sess.facade.InitErr(); err != nil {
				return errors.Wrap(err, "engine initialization failed")
			}
			if sess.facade.Handle() == nil {
				return engine.ErrNotInitialized
			}
			return nil
		case <-ticker.C:
			if sess.facade.Handle() != nil {
				return nil
			}
		}
	}
}

func (o *Orchestrator) sleep(ctx context.Context, at *activeTurn, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-at.done:
		return errTurnInterrupted
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// onPartial is the engine stream callback. Events for one generation arrive
// strictly in order; exactly one carries done=true. A stray callback after a
// cancel request is dropped.
func (o *Orchestrator) onPartial(sess *ModelSession, at *activeTurn, turn Turn, meta events.EventMetadata) engine.PartialFunc {
	return func(text string, done bool) {
		now := time.Now()

		at.mu.Lock()
		defer at.mu.Unlock()
		if at.terminal {
			return
		}

		if !at.sawFirst {
			at.sawFirst = true
			at.recorder.MarkFirstToken(now)
			// the loading placeholder becomes the streaming entry, exactly
			// once per turn
			o.sink.ReplaceLast(turn.Model, transcript.NewTextEntry(
				transcript.SideAgent, "",
				transcript.WithAccelerator(o.cfg.Generation.Accelerator),
			))
			at.loadingPresent = false
			at.handle.setState(TurnStateStreaming)
		}

		if text != "" {
			at.recorder.AddDecodeToken()
			at.completion += text
			o.sink.MutateLastText(turn.Model, text, at.recorder.ElapsedMs(now))
			o.sinks.PublishBlind(events.NewPartialEvent(meta, text, at.completion))
		}

		if !done {
			return
		}

		stats := at.recorder.Finalize(now)
		if last, ok := o.sink.LastEntry(turn.Model); ok {
			final := last.Clone()
			final.Stats = &stats
			final.LatencyMs = stats.Latency * 1000
			o.sink.ReplaceLast(turn.Model, final)
		}

		at.terminal = true
		at.handle.finish(TurnStateCompleted, nil)
		o.sinks.PublishBlind(events.NewFinalEvent(meta, at.completion, &stats))
		o.logger.Info().Str("model", turn.Model).Str("turn_id", turn.ID).
			Object("stats", stats).Msg("turn completed")
		at.signalDone()
	}
}

// Cancel stops the model's in-flight generation. It is idempotent and safe
// to call when nothing is running.
func (o *Orchestrator) Cancel(model string) {
	o.mu.Lock()
	sess, ok := o.sessions[model]
	o.mu.Unlock()
	if !ok {
		return
	}

	at := sess.activeTurn()
	if at == nil {
		o.logger.Debug().Str("model", model).Msg("cancel requested with no active generation")
		return
	}
	o.cancelTurn(sess, at, model)
}

func (o *Orchestrator) cancelTurn(sess *ModelSession, at *activeTurn, model string) {
	at.mu.Lock()
	if at.terminal {
		at.mu.Unlock()
		return
	}
	at.terminal = true
	completion := at.completion
	if at.loadingPresent {
		// no stream event arrived yet, drop the placeholder
		o.sink.RemoveLast(model)
		at.loadingPresent = false
	}
	at.mu.Unlock()

	sess.facade.Cancel(sess.Handle())

	meta := events.NewMetadata(model, at.handle.TurnID, "")
	o.sinks.PublishBlind(events.NewInterruptEvent(meta, completion))
	at.handle.finish(TurnStateCancelled, nil)
	o.logger.Info().Str("model", model).Str("turn_id", at.handle.TurnID).Msg("turn cancelled")
	at.signalDone()
}

// failTurn handles a synchronous failure from setup or the engine call: the
// in-progress state is cleared, the error callback runs, and the transcript
// is left exactly as accumulated.
func (o *Orchestrator) failTurn(sess *ModelSession, at *activeTurn, turn Turn, err error, onError func(error)) {
	at.mu.Lock()
	if at.terminal {
		at.mu.Unlock()
		return
	}
	at.terminal = true
	at.mu.Unlock()

	meta := events.NewMetadata(turn.Model, turn.ID, "")
	o.sinks.PublishBlind(events.NewErrorEvent(meta, err))
	o.logger.Error().Err(err).Str("model", turn.Model).Str("turn_id", turn.ID).Msg("turn failed")

	// onError completes before the handle turns terminal
	if onError != nil {
		onError(err)
	}
	at.handle.finish(TurnStateFailed, err)
	at.signalDone()
}
