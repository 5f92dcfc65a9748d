package events

// Event represents a structured state change produced by a protocol engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers such as the RPC surface
// or off-chain indexers reconstructing loan history.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// Engines default to it so emission stays optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
