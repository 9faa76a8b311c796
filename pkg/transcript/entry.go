package transcript

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/bench"
)

// Kind tags the variant of a transcript entry. Entries share a common
// envelope (id, side, timestamp, accelerator tag, optional stat block) and
// are dispatched on the tag rather than through a type hierarchy.
type Kind string

const (
	KindLoading   Kind = "loading"
	KindText      Kind = "text"
	KindWarning   Kind = "warning"
	KindDocument  Kind = "document"
	KindBenchmark Kind = "benchmark"
)

type Side string

const (
	SideUser   Side = "user"
	SideAgent  Side = "agent"
	SideSystem Side = "system"
)

// Entry is a single transcript entry.
//
// Text carries the (possibly still accumulating) message body for text and
// warning entries. Filename is set on document and warning entries that
// reference an attachment. LatencyMs is the in-progress latency display on a
// streaming entry; the final values live in Stats, attached exactly once at
// the terminal stream event.
type Entry struct {
	ID          uuid.UUID    `json:"id"`
	Kind        Kind         `json:"kind"`
	Side        Side         `json:"side"`
	Time        time.Time    `json:"time"`
	Accelerator string       `json:"accelerator,omitempty"`
	Stats       *bench.Stats `json:"stats,omitempty"`

	Text      string  `json:"text,omitempty"`
	Filename  string  `json:"filename,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

type EntryOption func(*Entry)

func WithAccelerator(accelerator string) EntryOption {
	return func(e *Entry) {
		e.Accelerator = accelerator
	}
}

func WithTime(t time.Time) EntryOption {
	return func(e *Entry) {
		e.Time = t
	}
}

func WithFilename(filename string) EntryOption {
	return func(e *Entry) {
		e.Filename = filename
	}
}

func newEntry(kind Kind, side Side, options ...EntryOption) *Entry {
	ret := &Entry{
		ID:   uuid.New(),
		Kind: kind,
		Side: side,
		Time: time.Now(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// NewLoadingEntry is the placeholder shown while the engine prepares the
// turn. At most one exists per model at a time.
func NewLoadingEntry(options ...EntryOption) *Entry {
	return newEntry(KindLoading, SideAgent, options...)
}

// NewTextEntry is a message entry. For the agent side it starts empty and
// accumulates partial fragments as they stream in.
func NewTextEntry(side Side, text string, options ...EntryOption) *Entry {
	e := newEntry(KindText, side, options...)
	e.Text = text
	return e
}

func NewWarningEntry(text string, options ...EntryOption) *Entry {
	e := newEntry(KindWarning, SideSystem, options...)
	e.Text = text
	return e
}

func NewDocumentEntry(filename string, options ...EntryOption) *Entry {
	e := newEntry(KindDocument, SideUser, options...)
	e.Filename = filename
	return e
}

// Clone returns a shallow copy with its own Stats pointer, so a mutated copy
// can replace the original without aliasing.
func (e *Entry) Clone() *Entry {
	cp := *e
	if e.Stats != nil {
		stats := *e.Stats
		cp.Stats = &stats
	}
	return &cp
}
