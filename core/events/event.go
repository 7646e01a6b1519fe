package events

import "github.com/palindrome-eng/srl-program/core/types"

// Event represents a structured state change emitted by the program.
type Event interface {
	EventType() string
}

// Envelope is an Event that also carries its generic attribute payload.
type Envelope interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the journal,
// metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// MultiEmitter fans every event out to each emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Payload extracts the attribute payload of evt when it has one.
func Payload(evt Event) (*types.Event, bool) {
	envelope, ok := evt.(Envelope)
	if !ok {
		return nil, false
	}
	payload := envelope.Event()
	return payload, payload != nil
}
