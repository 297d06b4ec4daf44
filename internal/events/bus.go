package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(FormatChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete type
	switch e := ev.(type) {
	case TrackChangedEvent:
		event.Publish(b.dispatcher, e)
	case FormatRequestedEvent:
		event.Publish(b.dispatcher, e)
	case FormatChangedEvent:
		event.Publish(b.dispatcher, e)
	case FormatRejectedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceTopologyChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogSourceStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e FormatChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(TrackChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FormatRequestedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FormatChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FormatRejectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceTopologyChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogSourceStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
