// Package event implements a process-wide, write-once-at-startup
// publish/subscribe registry. It is the Go expression of the
// EDS_GROUP_DEFINE / EDS_EVENT_HANDLER_REGISTER / EDS_EVENT_TRIGGER macro
// trio in original_source/BLE_hrm/ble_hrm.c: a named Group maps event IDs to
// an ordered list of Handlers, and Trigger invokes them synchronously, in
// registration order, on the caller's own stack.
//
// There is no queuing and no filtering by event ID here: a Handler is
// expected to branch on the id argument itself, exactly as the C handlers
// switch on evt_id.
package event

import "sync"

// ID identifies one kind of event within a Group (e.g. NRF24's TxSuccess,
// TxFailed, DataReady, AckSent, InvalidOperation).
type ID int

// Handler receives a triggered event's payload. payload is nil for events
// that carry no data.
type Handler func(id ID, payload interface{})

// Group is one named registry of handlers, all of which see every Trigger
// call for that group regardless of ID — matching EDS_EVENT_HANDLER_REGISTER
// registering against a group, not a specific event ID.
type Group struct {
	mu       sync.Mutex
	name     string
	handlers []Handler
	frozen   bool
}

// NewGroup creates an empty, writable Group.
func NewGroup(name string) *Group {
	return &Group{name: name}
}

// Name returns the group's identifier, for logging.
func (g *Group) Name() string { return g.name }

// Register appends a handler to the group's ordered list. Registration is
// expected to complete during startup wiring (spec §4.7: "all handlers are
// known at build time"); Register panics if called after the group has been
// triggered once, to catch a handler being added from outside that wiring
// phase.
func (g *Group) Register(h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		panic("event: Register called on group " + g.name + " after Trigger")
	}
	g.handlers = append(g.handlers, h)
}

// Trigger invokes every registered handler in registration order,
// synchronously, on the caller's stack. Handlers must not block (spec §5).
// The first Trigger call freezes the group against further Register calls.
func (g *Group) Trigger(id ID, payload interface{}) {
	g.mu.Lock()
	g.frozen = true
	handlers := g.handlers
	g.mu.Unlock()

	for _, h := range handlers {
		h(id, payload)
	}
}

// HandlerCount reports how many handlers are currently registered, for
// tests and diagnostics.
func (g *Group) HandlerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handlers)
}
