package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/engine"
	"github.com/tomgee18/TomGeeEdgeAI/pkg/events"
)

type collectingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collectingSink) PublishEvent(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collectingSink) types() []events.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]events.EventType, 0, len(c.events))
	for _, e := range c.events {
		ret = append(ret, e.Type())
	}
	return ret
}

func (c *collectingSink) count(t events.EventType) int {
	n := 0
	for _, typ := range c.types() {
		if typ == t {
			n++
		}
	}
	return n
}

func TestResetSession_RetriesUntilEngineSucceeds(t *testing.T) {
	e := engine.NewEchoEngine()
	e.ResetFailures = 3

	sink := &collectingSink{}
	o, store := newTestOrchestrator(t, WithEventSink(sink))
	registerEcho(t, o, "echo", e)

	h, err := o.Generate(context.Background(), NewTurn("echo", "Hello"), nil)
	require.NoError(t, err)
	waitState(t, h, TurnStateCompleted)
	require.NotEmpty(t, store.Entries("echo"))

	require.NoError(t, o.ResetSession(context.Background(), "echo"))

	assert.Equal(t, 4, e.ResetAttempts())
	assert.Empty(t, store.Entries("echo"))

	sess, ok := o.Session("echo")
	require.True(t, ok)
	assert.Equal(t, SessionStateActive, sess.State())

	assert.Equal(t, 3, sink.count(events.EventTypeResetAttempt))
	assert.Equal(t, 1, sink.count(events.EventTypeResetDone))
}

func TestResetSession_AttemptCapSurfacesError(t *testing.T) {
	e := engine.NewEchoEngine()
	e.ResetFailures = 10

	cfg := testSettings()
	cfg.Orchestration.ResetMaxAttempts = 2

	o, _ := newTestOrchestrator(t, WithSettings(cfg))
	registerEcho(t, o, "echo", e)

	err := o.ResetSession(context.Background(), "echo")
	require.Error(t, err)
	assert.Equal(t, 2, e.ResetAttempts())
}

func TestResetSession_ContextCancelStopsTheLoop(t *testing.T) {
	e := engine.NewEchoEngine()
	e.ResetFailures = 1000

	cfg := testSettings()
	cfg.Orchestration.ResetBackoff = 10 * time.Millisecond

	o, _ := newTestOrchestrator(t, WithSettings(cfg))
	registerEcho(t, o, "echo", e)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	err := o.ResetSession(ctx, "echo")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResetSession_InterruptsRunningGeneration(t *testing.T) {
	e := engine.NewEchoEngine()
	e.Reply = "a reply long enough to still be streaming when the reset lands"
	e.TimePerToken = 5 * time.Millisecond

	o, store := newTestOrchestrator(t)
	registerEcho(t, o, "echo", e)

	h, err := o.Generate(context.Background(), NewTurn("echo", "ignored"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.State() == TurnStateStreaming
	}, time.Second, time.Millisecond)

	require.NoError(t, o.ResetSession(context.Background(), "echo"))

	// the in-flight turn was force-cancelled before the engine reset ran
	assert.Equal(t, TurnStateCancelled, h.State())
	assert.Empty(t, store.Entries("echo"))

	sess, ok := o.Session("echo")
	require.True(t, ok)
	assert.Equal(t, SessionStateActive, sess.State())

	// the session is immediately usable again
	h2, err := o.Generate(context.Background(), NewTurn("echo", "again"), nil)
	require.NoError(t, err)
	waitState(t, h2, TurnStateCompleted)
}

func TestResetSession_UnknownModel(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	err := o.ResetSession(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestDestroyModel_RejectsFurtherTurns(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	registerEcho(t, o, "echo", engine.NewEchoEngine())

	o.DestroyModel("echo")

	_, err := o.Generate(context.Background(), NewTurn("echo", "hi"), nil)
	assert.ErrorIs(t, err, ErrUnknownModel)
}
