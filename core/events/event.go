package events

import "gasstation/core/types"

// Event is a structured record of a state change emitted by the core engines.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter delivers events to downstream subscribers (RPC, indexers, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding everything. Engines fall back
// to it when the caller does not care about events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MemoryEmitter buffers rendered events in order of emission. Used by the RPC
// layer to surface per-request events and by tests to assert on them.
type MemoryEmitter struct {
	events []*types.Event
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(evt Event) {
	if m == nil || evt == nil {
		return
	}
	m.events = append(m.events, evt.Event())
}

// Events returns the buffered events in emission order.
func (m *MemoryEmitter) Events() []*types.Event {
	if m == nil {
		return nil
	}
	out := make([]*types.Event, len(m.events))
	copy(out, m.events)
	return out
}

// Reset drops all buffered events.
func (m *MemoryEmitter) Reset() {
	if m != nil {
		m.events = nil
	}
}
