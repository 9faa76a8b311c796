package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFailingChatServer passes the heartbeat but rejects every chat call, the
// shape of a backend that comes up and then falls over mid-generation.
func newFailingChatServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/chat" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model exploded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEngine_StreamFailureLandsOnTerminalChannel(t *testing.T) {
	srv := newFailingChatServer(t)
	t.Setenv("OLLAMA_HOST", srv.URL)

	e := NewOllamaEngine()
	require.NoError(t, e.Initialize(context.Background(), Config{Model: "m"}))
	h := waitReady(t, e)

	var sawCallback bool
	genDone, err := e.GenerateAsync(context.Background(), h, func(string, bool) {
		sawCallback = true
	})
	require.NoError(t, err)

	select {
	case err := <-genDone:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model exploded")
	case <-time.After(2 * time.Second):
		t.Fatal("stream failure was never reported")
	}
	assert.False(t, sawCallback)
}
