package bench

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_DerivesAllFourStats(t *testing.T) {
	start := time.Now()
	r := NewRecorder(100, start)
	r.MarkFirstToken(start.Add(500 * time.Millisecond))
	for i := 0; i < 20; i++ {
		r.AddDecodeToken()
	}

	stats := r.Finalize(start.Add(2500 * time.Millisecond))
	assert.InDelta(t, 0.5, stats.TimeToFirstToken, 1e-9)
	assert.InDelta(t, 200.0, stats.PrefillSpeed, 1e-9)
	assert.InDelta(t, 10.0, stats.DecodeSpeed, 1e-9)
	assert.InDelta(t, 2.5, stats.Latency, 1e-9)
}

func TestRecorder_DecodeSpeedZeroWhenNoElapsedTime(t *testing.T) {
	start := time.Now()
	first := start.Add(100 * time.Millisecond)

	r := NewRecorder(10, start)
	r.MarkFirstToken(first)
	r.AddDecodeToken()

	// terminal event at the first-token timestamp: zero decode window
	stats := r.Finalize(first)
	assert.Equal(t, 0.0, stats.DecodeSpeed)
	assert.False(t, math.IsNaN(stats.DecodeSpeed))
	assert.False(t, math.IsInf(stats.DecodeSpeed, 0))
}

func TestRecorder_PrefillSpeedRequiresPositiveTTFT(t *testing.T) {
	start := time.Now()
	r := NewRecorder(50, start)
	r.MarkFirstToken(start) // ttft == 0

	stats := r.Finalize(start.Add(time.Second))
	assert.Equal(t, 0.0, stats.PrefillSpeed)
}

func TestRecorder_NoFirstTokenLeavesSpeedsZero(t *testing.T) {
	start := time.Now()
	r := NewRecorder(50, start)

	stats := r.Finalize(start.Add(time.Second))
	assert.Equal(t, 0.0, stats.TimeToFirstToken)
	assert.Equal(t, 0.0, stats.PrefillSpeed)
	assert.Equal(t, 0.0, stats.DecodeSpeed)
	assert.InDelta(t, 1.0, stats.Latency, 1e-9)
}

func TestRecorder_FinalizeIsIdempotent(t *testing.T) {
	start := time.Now()
	r := NewRecorder(10, start)
	r.MarkFirstToken(start.Add(10 * time.Millisecond))
	r.AddDecodeToken()

	first := r.Finalize(start.Add(time.Second))
	require.True(t, r.Finalized())

	// another terminal timestamp must not change the published block
	second := r.Finalize(start.Add(5 * time.Second))
	assert.Equal(t, first, second)
}

func TestRecorder_MarkFirstTokenKeepsEarliestTimestamp(t *testing.T) {
	start := time.Now()
	r := NewRecorder(10, start)
	r.MarkFirstToken(start.Add(100 * time.Millisecond))
	r.MarkFirstToken(start.Add(900 * time.Millisecond))

	stats := r.Finalize(start.Add(time.Second))
	assert.InDelta(t, 0.1, stats.TimeToFirstToken, 1e-9)
}

func TestEstimateTokens_ImageSurcharge(t *testing.T) {
	base := EstimateTokens("hello world", false, DefaultImageTokenCost)
	withImage := EstimateTokens("hello world", true, DefaultImageTokenCost)
	assert.Equal(t, base+DefaultImageTokenCost, withImage)
}

func TestCountTokens_NonEmptyPrompt(t *testing.T) {
	n := CountTokens("The quick brown fox jumps over the lazy dog")
	assert.Greater(t, n, 0)
}
