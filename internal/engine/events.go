package engine

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventRunStarted  = "run_started"
	EventRunStep     = "run_step"
	EventRunFinished = "run_finished"
	EventModeChanged = "mode_changed"
)

// Event is published on the engine's bus. Data is a Run snapshot for run
// events and the new Mode for mode_changed.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

type subscription struct {
	types   map[string]bool // nil receives everything
	handler EventHandler
}

// EventBus provides pub/sub for engine events.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[uint64]subscription
	nextID uint64
	logger *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{subs: make(map[uint64]subscription), logger: logger}
}

// On registers a handler for the given event types, or for every event when
// none are given. Returns an unsubscribe function.
func (eb *EventBus) On(handler EventHandler, eventTypes ...string) func() {
	if len(eventTypes) == 0 {
		return eb.OnAll(handler)
	}
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	return eb.subscribe(subscription{types: types, handler: handler})
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	return eb.subscribe(subscription{handler: handler})
}

func (eb *EventBus) subscribe(s subscription) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.subs[id] = s
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.subs, id)
	}
}

// Emit sends an event to all matching handlers.
// Handlers run synchronously on the run's goroutine; a panicking handler is
// recovered and cannot stall the run.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.subs))
	for _, s := range eb.subs {
		if s.types == nil || s.types[event.Type] {
			handlers = append(handlers, s.handler)
		}
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
