package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/events"
)

// consoleSink renders the event stream for a terminal: partial deltas flow
// straight to the writer, the final event appends the benchmark line.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

var _ events.EventSink = (*consoleSink)(nil)

func (c *consoleSink) PublishEvent(event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := event.(type) {
	case *events.EventPartial:
		fmt.Fprint(c.out, e.Delta)
	case *events.EventFinal:
		fmt.Fprintln(c.out)
		if e.Stats != nil {
			fmt.Fprintf(c.out,
				"\nttft %.2fs | prefill %.1f tok/s | decode %.1f tok/s | total %.2fs\n",
				e.Stats.TimeToFirstToken, e.Stats.PrefillSpeed,
				e.Stats.DecodeSpeed, e.Stats.Latency)
		}
	case *events.EventInterrupt:
		fmt.Fprintln(c.out, "\n[interrupted]")
	case *events.EventError:
		fmt.Fprintf(c.out, "\n[error] %s\n", e.ErrorString)
	}
	return nil
}
