package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitReady(t *testing.T, e Facade) *Handle {
	t.Helper()
	select {
	case <-e.Ready():
	case <-time.After(time.Second):
		t.Fatal("engine did not become ready")
	}
	h := e.Handle()
	require.NotNil(t, h)
	return h
}

func TestEchoEngine_StreamsReplyWithSingleDoneEvent(t *testing.T) {
	e := NewEchoEngine()
	e.Reply = "Hey"
	require.NoError(t, e.Initialize(context.Background(), Config{Model: "echo"}))
	h := waitReady(t, e)

	var mu sync.Mutex
	var fragments []string
	doneCount := 0
	done := make(chan struct{})

	_, err := e.GenerateAsync(context.Background(), h, func(text string, isDone bool) {
		mu.Lock()
		defer mu.Unlock()
		if isDone {
			doneCount++
			close(done)
			return
		}
		fragments = append(fragments, text)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("generation did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"H", "e", "y"}, fragments)
	assert.Equal(t, 1, doneCount)
}

func TestEchoEngine_EchoesAttachedText(t *testing.T) {
	e := NewEchoEngine()
	require.NoError(t, e.Initialize(context.Background(), Config{}))
	h := waitReady(t, e)
	require.NoError(t, e.AttachText(h, "ab"))

	var mu sync.Mutex
	completion := ""
	done := make(chan struct{})
	_, err := e.GenerateAsync(context.Background(), h, func(text string, isDone bool) {
		mu.Lock()
		defer mu.Unlock()
		if isDone {
			close(done)
			return
		}
		completion += text
	})
	require.NoError(t, err)

	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "ab", completion)
}

func TestEchoEngine_CancelSuppressesDoneEvent(t *testing.T) {
	e := NewEchoEngine()
	e.Reply = "a long reply that will be cut short"
	e.TimePerToken = 5 * time.Millisecond
	require.NoError(t, e.Initialize(context.Background(), Config{}))
	h := waitReady(t, e)

	var mu sync.Mutex
	sawDone := false
	_, err := e.GenerateAsync(context.Background(), h, func(text string, isDone bool) {
		mu.Lock()
		defer mu.Unlock()
		if isDone {
			sawDone = true
		}
	})
	require.NoError(t, err)

	e.Cancel(h)
	require.NoError(t, e.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, sawDone)
}

func TestEchoEngine_ResetFailsNTimesThenSucceeds(t *testing.T) {
	e := NewEchoEngine()
	e.ResetFailures = 2
	require.NoError(t, e.Initialize(context.Background(), Config{}))
	h := waitReady(t, e)

	_, err := e.ResetSession(context.Background(), h)
	require.Error(t, err)
	_, err = e.ResetSession(context.Background(), h)
	require.Error(t, err)

	fresh, err := e.ResetSession(context.Background(), h)
	require.NoError(t, err)
	assert.NotEqual(t, h.ID, fresh.ID)
	assert.Equal(t, 3, e.ResetAttempts())
}

func TestEchoEngine_GenerateBeforeReadyFails(t *testing.T) {
	e := NewEchoEngine()
	e.InitDelay = time.Hour
	require.NoError(t, e.Initialize(context.Background(), Config{}))

	_, err := e.GenerateAsync(context.Background(), NewHandle(), func(string, bool) {})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestEchoEngine_TerminalChannelReportsCleanFinish(t *testing.T) {
	e := NewEchoEngine()
	e.Reply = "ok"
	require.NoError(t, e.Initialize(context.Background(), Config{}))
	h := waitReady(t, e)

	genDone, err := e.GenerateAsync(context.Background(), h, func(string, bool) {})
	require.NoError(t, err)

	select {
	case err := <-genDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not report completion")
	}
}
