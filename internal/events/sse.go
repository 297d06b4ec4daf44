package events

import (
	"sync"
	"sync/atomic"

	"github.com/kelindar/event"
)

// Stream merges several event types into one buffered channel for a single
// streaming client. A slow client loses events rather than stalling the bus.
type Stream struct {
	C chan any

	mu      sync.Mutex
	unsubs  []func()
	dropped atomic.Uint64
}

// NewStream creates a stream buffering up to size events.
func NewStream(size int) *Stream {
	return &Stream{C: make(chan any, size)}
}

// Join adds events of type T from bus to s.
func Join[T Event](s *Stream, bus *Bus) {
	unsub := event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case s.C <- e:
		default:
			s.dropped.Add(1)
		}
	})
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
}

// Dropped counts events discarded because C was full.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes from every joined event type. C is left open.
func (s *Stream) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}
