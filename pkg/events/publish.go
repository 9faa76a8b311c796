package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// SinkManager fans events out to a set of registered sinks. It keeps a
// sequence number for outgoing events, in the order Publish handles them, so
// sinks that persist events can recover ordering.
type SinkManager struct {
	mu             sync.Mutex
	sinks          []EventSink
	sequenceNumber uint64
}

func NewSinkManager(sinks ...EventSink) *SinkManager {
	return &SinkManager{
		sinks: sinks,
	}
}

func (m *SinkManager) AddSink(sink EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Sequence returns the number of events published so far.
func (m *SinkManager) Sequence() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sequenceNumber
}

func (m *SinkManager) Publish(event Event) error {
	m.mu.Lock()
	m.sequenceNumber++
	sinks := make([]EventSink, len(m.sinks))
	copy(sinks, m.sinks)
	m.mu.Unlock()

	var firstErr error
	for _, sink := range sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("failed to publish event")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PublishBlind publishes and only logs failures. Used on the streaming hot
// path, where a broken sink must not abort the turn.
func (m *SinkManager) PublishBlind(event Event) {
	_ = m.Publish(event)
}
