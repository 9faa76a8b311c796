package settings

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/bench"
)

// GenerationSettings is opaque pass-through configuration for the engine
// facade.
type GenerationSettings struct {
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	TopK        int     `mapstructure:"top_k" yaml:"top_k"`
	TopP        float64 `mapstructure:"top_p" yaml:"top_p"`
	Accelerator string  `mapstructure:"accelerator" yaml:"accelerator"`
}

// OrchestrationSettings are the turn life-cycle timing knobs. The warm-up
// delay and readiness poll interval replace what used to be embedded
// literals.
type OrchestrationSettings struct {
	// ReadinessPollInterval is the fallback poll period while waiting for
	// the engine handle to appear.
	ReadinessPollInterval time.Duration `mapstructure:"readiness_poll_interval" yaml:"readiness_poll_interval"`
	// WarmupDelay is applied once after the handle is ready, before the
	// generation call is issued.
	WarmupDelay time.Duration `mapstructure:"warmup_delay" yaml:"warmup_delay"`
	// ResetBackoff is the fixed sleep between session recreation attempts.
	ResetBackoff time.Duration `mapstructure:"reset_backoff" yaml:"reset_backoff"`
	// ResetMaxAttempts caps session recreation attempts. 0 retries until
	// success.
	ResetMaxAttempts int `mapstructure:"reset_max_attempts" yaml:"reset_max_attempts"`
}

type BenchSettings struct {
	// ImageTokenCost is a fixed heuristic surcharge per attached image, not
	// a measurement.
	ImageTokenCost    int    `mapstructure:"image_token_cost" yaml:"image_token_cost"`
	TokenizerEncoding string `mapstructure:"tokenizer_encoding" yaml:"tokenizer_encoding"`
}

type Settings struct {
	Generation    GenerationSettings    `mapstructure:"generation" yaml:"generation"`
	Orchestration OrchestrationSettings `mapstructure:"orchestration" yaml:"orchestration"`
	Bench         BenchSettings         `mapstructure:"bench" yaml:"bench"`
}

func Default() *Settings {
	return &Settings{
		Generation: GenerationSettings{
			MaxTokens:   1024,
			Temperature: 0.8,
			TopK:        40,
			TopP:        0.95,
			Accelerator: "cpu",
		},
		Orchestration: OrchestrationSettings{
			ReadinessPollInterval: 100 * time.Millisecond,
			WarmupDelay:           500 * time.Millisecond,
			ResetBackoff:          time.Second,
			ResetMaxAttempts:      0,
		},
		Bench: BenchSettings{
			ImageTokenCost:    bench.DefaultImageTokenCost,
			TokenizerEncoding: bench.DefaultEncoding,
		},
	}
}

// Load overlays viper-provided values (config file, env) on the defaults.
func Load(v *viper.Viper) (*Settings, error) {
	ret := Default()
	if v == nil {
		return ret, nil
	}
	if err := v.Unmarshal(ret); err != nil {
		return nil, errors.Wrap(err, "could not unmarshal settings")
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Settings) Validate() error {
	if s.Orchestration.ReadinessPollInterval <= 0 {
		return errors.New("readiness_poll_interval must be positive")
	}
	if s.Orchestration.WarmupDelay < 0 {
		return errors.New("warmup_delay must not be negative")
	}
	if s.Orchestration.ResetBackoff <= 0 {
		return errors.New("reset_backoff must be positive")
	}
	if s.Orchestration.ResetMaxAttempts < 0 {
		return errors.New("reset_max_attempts must not be negative")
	}
	if s.Bench.ImageTokenCost < 0 {
		return errors.New("image_token_cost must not be negative")
	}
	return nil
}
