package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/tomgee18/TomGeeEdgeAI/pkg/bench"
)

type EventType string

const (
	// EventTypeStart through EventTypeFinal cover the streaming life cycle of
	// one generation turn.
	EventTypeStart   EventType = "start"
	EventTypePartial EventType = "partial"
	EventTypeFinal   EventType = "final"
	EventTypeError   EventType = "error"
	// EventTypeInterrupt is emitted when a turn is cancelled mid-flight.
	EventTypeInterrupt EventType = "interrupt"

	// Session recovery events
	EventTypeResetAttempt EventType = "reset-attempt"
	EventTypeResetDone    EventType = "reset-done"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata identifies which model/turn/session an event belongs to.
type EventMetadata struct {
	ID      uuid.UUID `json:"event_id"`
	Model   string    `json:"model,omitempty"`
	TurnID  string    `json:"turn_id,omitempty"`
	Session string    `json:"session_id,omitempty"`
	Time    time.Time `json:"time"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("event_id", em.ID.String())
	if em.Model != "" {
		e.Str("model", em.Model)
	}
	if em.TurnID != "" {
		e.Str("turn_id", em.TurnID)
	}
	if em.Session != "" {
		e.Str("session_id", em.Session)
	}
	e.Time("time", em.Time)
}

// NewMetadata stamps a fresh event id and the current wall clock.
func NewMetadata(model, turnID, sessionID string) EventMetadata {
	return EventMetadata{
		ID:      uuid.New(),
		Model:   model,
		TurnID:  turnID,
		Session: sessionID,
		Time:    time.Now(),
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	// raw JSON the event was decoded from, if any
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

type EventStart struct {
	EventImpl
	PrefillTokens int `json:"prefill_tokens"`
}

func NewStartEvent(metadata EventMetadata, prefillTokens int) *EventStart {
	return &EventStart{
		EventImpl:     EventImpl{Type_: EventTypeStart, Metadata_: metadata},
		PrefillTokens: prefillTokens,
	}
}

var _ Event = &EventStart{}

// EventPartial is one streamed fragment. Completion is the accumulated text
// so far.
type EventPartial struct {
	EventImpl
	Delta      string `json:"delta"`
	Completion string `json:"completion"`
}

func NewPartialEvent(metadata EventMetadata, delta, completion string) *EventPartial {
	return &EventPartial{
		EventImpl:  EventImpl{Type_: EventTypePartial, Metadata_: metadata},
		Delta:      delta,
		Completion: completion,
	}
}

var _ Event = &EventPartial{}

type EventFinal struct {
	EventImpl
	Text  string       `json:"text"`
	Stats *bench.Stats `json:"stats,omitempty"`
}

func NewFinalEvent(metadata EventMetadata, text string, stats *bench.Stats) *EventFinal {
	return &EventFinal{
		EventImpl: EventImpl{Type_: EventTypeFinal, Metadata_: metadata},
		Text:      text,
		Stats:     stats,
	}
}

var _ Event = &EventFinal{}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventError{}

// EventInterrupt carries whatever partial text had accumulated when the turn
// was cancelled.
type EventInterrupt struct {
	EventImpl
	Text string `json:"text"`
}

func NewInterruptEvent(metadata EventMetadata, text string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl: EventImpl{Type_: EventTypeInterrupt, Metadata_: metadata},
		Text:      text,
	}
}

var _ Event = &EventInterrupt{}

// EventResetAttempt is published for every failed session recreation attempt.
type EventResetAttempt struct {
	EventImpl
	Attempt     int    `json:"attempt"`
	ErrorString string `json:"error_string,omitempty"`
}

func NewResetAttemptEvent(metadata EventMetadata, attempt int, err error) *EventResetAttempt {
	ret := &EventResetAttempt{
		EventImpl: EventImpl{Type_: EventTypeResetAttempt, Metadata_: metadata},
		Attempt:   attempt,
	}
	if err != nil {
		ret.ErrorString = err.Error()
	}
	return ret
}

var _ Event = &EventResetAttempt{}

type EventResetDone struct {
	EventImpl
	Attempts int `json:"attempts"`
}

func NewResetDoneEvent(metadata EventMetadata, attempts int) *EventResetDone {
	return &EventResetDone{
		EventImpl: EventImpl{Type_: EventTypeResetDone, Metadata_: metadata},
		Attempts:  attempts,
	}
}

var _ Event = &EventResetDone{}

// NewEventFromJSON decodes a bus payload back into its typed event,
// dispatching on the type tag.
func NewEventFromJSON(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, errors.Wrap(err, "could not decode event header")
	}

	decode := func(ev Event) (Event, error) {
		if err := json.Unmarshal(b, ev); err != nil {
			return nil, errors.Wrapf(err, "could not decode %s event", hdr.Type)
		}
		if setter, ok := ev.(interface{ setPayload([]byte) }); ok {
			setter.setPayload(b)
		}
		return ev, nil
	}

	switch hdr.Type {
	case EventTypeStart:
		return decode(&EventStart{})
	case EventTypePartial:
		return decode(&EventPartial{})
	case EventTypeFinal:
		return decode(&EventFinal{})
	case EventTypeError:
		return decode(&EventError{})
	case EventTypeInterrupt:
		return decode(&EventInterrupt{})
	case EventTypeResetAttempt:
		return decode(&EventResetAttempt{})
	case EventTypeResetDone:
		return decode(&EventResetDone{})
	default:
		return nil, errors.Errorf("unknown event type %q", hdr.Type)
	}
}

func (e *EventImpl) setPayload(b []byte) {
	e.payload = b
}
