package bench

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Stats is the published stat block for one generation turn. Durations are
// seconds, speeds are tokens per second.
type Stats struct {
	TimeToFirstToken float64 `json:"time_to_first_token"`
	PrefillSpeed     float64 `json:"prefill_speed"`
	DecodeSpeed      float64 `json:"decode_speed"`
	Latency          float64 `json:"latency"`
}

func (s Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("ttft", s.TimeToFirstToken)
	e.Float64("prefill_speed", s.PrefillSpeed)
	e.Float64("decode_speed", s.DecodeSpeed)
	e.Float64("latency", s.Latency)
}

// Recorder accumulates timestamps and counters for one turn and derives the
// stat block at the terminal stream event.
//
// It is a pure function of the event timeline: start time, first-token time,
// prefill token estimate and a running decode counter. Finalize is guarded so
// the stat block is produced at most once per turn.
type Recorder struct {
	mu sync.Mutex

	prefillTokens int
	start         time.Time
	firstToken    time.Time
	decodeTokens  int

	finalized bool
	stats     Stats
}

func NewRecorder(prefillTokens int, start time.Time) *Recorder {
	return &Recorder{
		prefillTokens: prefillTokens,
		start:         start,
	}
}

// MarkFirstToken records the first-token timestamp. Subsequent calls are
// no-ops so the timestamp always reflects the first stream event.
func (r *Recorder) MarkFirstToken(ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.firstToken.IsZero() {
		return
	}
	r.firstToken = ts
}

// AddDecodeToken increments the running decode-token counter.
func (r *Recorder) AddDecodeToken() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decodeTokens++
}

// ElapsedMs returns the time since the turn started, in milliseconds. Used
// for the in-progress latency display on the streaming entry.
func (r *Recorder) ElapsedMs(now time.Time) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(now.Sub(r.start).Milliseconds())
}

// Finalize derives the four published stats at the terminal event.
//
// Prefill speed is only computed once ttft > 0, and decode speed substitutes
// 0 when the elapsed decode time is zero, so neither is ever NaN or Inf.
// Finalize is idempotent: the first call computes the block, later calls
// return the same block.
func (r *Recorder) Finalize(now time.Time) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return r.stats
	}

	s := Stats{
		Latency: now.Sub(r.start).Seconds(),
	}
	if !r.firstToken.IsZero() {
		s.TimeToFirstToken = r.firstToken.Sub(r.start).Seconds()
		if s.TimeToFirstToken > 0 {
			s.PrefillSpeed = float64(r.prefillTokens) / s.TimeToFirstToken
		}
		decodeElapsed := now.Sub(r.firstToken).Seconds()
		if decodeElapsed > 0 {
			s.DecodeSpeed = float64(r.decodeTokens) / decodeElapsed
		}
	}

	r.finalized = true
	r.stats = s
	return s
}

// Finalized reports whether the stat block has been produced.
func (r *Recorder) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// DecodeTokens returns the running decode-token counter.
func (r *Recorder) DecodeTokens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decodeTokens
}
