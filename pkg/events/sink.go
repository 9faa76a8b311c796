package events

// EventSink is a destination for turn life-cycle events. Implementations can
// forward events to a message bus, a logger or an in-process handler.
type EventSink interface {
	PublishEvent(event Event) error
}

// NullSink discards every event.
type NullSink struct{}

func (NullSink) PublishEvent(Event) error {
	return nil
}

var _ EventSink = NullSink{}
