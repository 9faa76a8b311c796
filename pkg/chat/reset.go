package chat

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/events"
)

// ResetSession recovers a stuck engine session: it clears the model's
// transcript, force-cancels any in-flight generation, then retries session
// recreation with a fixed backoff until one attempt succeeds.
//
// With ResetMaxAttempts == 0 the loop retries until success, matching the
// historical behavior; a positive cap surfaces persistent failure instead of
// looping silently. No generation can start for the model while the reset is
// in flight.
func (o *Orchestrator) ResetSession(ctx context.Context, model string) error {
	o.mu.Lock()
	sess, ok := o.sessions[model]
	o.mu.Unlock()
	if !ok {
		return errors.Wrap(ErrUnknownModel, model)
	}

	// force any active generation to a terminal state before taking the turn
	// lock, so the worker releases it promptly
	o.Cancel(model)

	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	if sess.State() == SessionStateDestroyed {
		return errors.Wrap(ErrSessionDestroyed, model)
	}

	sess.setState(SessionStateResetting)
	o.sink.Clear(model)
	o.logger.Info().Str("model", model).Msg("session reset started")

	backoff := o.cfg.Orchestration.ResetBackoff
	maxAttempts := o.cfg.Orchestration.ResetMaxAttempts
	meta := events.NewMetadata(model, "", "")

	attempt := 0
	for {
		attempt++

		handle, err := sess.facade.ResetSession(ctx, sess.Handle())
		if err == nil {
			sess.setHandle(handle)
			sess.setState(SessionStateActive)
			o.sinks.PublishBlind(events.NewResetDoneEvent(meta, attempt))
			o.logger.Info().Str("model", model).Int("attempts", attempt).Msg("session reset succeeded")
			return nil
		}

		o.logger.Warn().Err(err).Str("model", model).Int("attempt", attempt).Msg("session reset attempt failed")
		o.sinks.PublishBlind(events.NewResetAttemptEvent(meta, attempt, err))

		if maxAttempts > 0 && attempt >= maxAttempts {
			return errors.Wrapf(err, "session reset for model %s failed after %d attempts", model, attempt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
