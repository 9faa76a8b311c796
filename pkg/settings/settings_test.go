package settings

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NilViperReturnsDefaults(t *testing.T) {
	s, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	v := viper.New()
	v.Set("orchestration.warmup_delay", "50ms")
	v.Set("orchestration.reset_max_attempts", 3)
	v.Set("generation.max_tokens", 256)
	v.Set("bench.image_token_cost", 300)

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, s.Orchestration.WarmupDelay)
	assert.Equal(t, 3, s.Orchestration.ResetMaxAttempts)
	assert.Equal(t, 256, s.Generation.MaxTokens)
	assert.Equal(t, 300, s.Bench.ImageTokenCost)
	// untouched keys keep their defaults
	assert.Equal(t, Default().Generation.Temperature, s.Generation.Temperature)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	v := viper.New()
	v.Set("orchestration.reset_backoff", "0s")

	_, err := Load(v)
	assert.Error(t, err)
}
