package logging

import (
	"sync"
	"time"
)

// LogEntry is one buffered log record.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries. Every write is numbered, so
// readers can resume after the last sequence number they saw.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	seq     uint64 // sequence number of the newest entry
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, size)}
}

// Write stores entry under the next sequence number, evicting the oldest
// entry when full, and returns the stored entry.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	entry.Seq = rb.seq
	rb.entries[rb.slot(rb.seq)] = entry
	return entry
}

// slot maps a sequence number, starting at 1, to its index.
func (rb *RingBuffer) slot(seq uint64) int {
	return int((seq - 1) % uint64(len(rb.entries)))
}

// ReadAll returns the buffered entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Since(0)
}

// Since returns the buffered entries with a sequence number above seq.
func (rb *RingBuffer) Since(seq uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	oldest := rb.oldest()
	if seq+1 > oldest {
		oldest = seq + 1
	}
	if oldest > rb.seq {
		return nil
	}
	out := make([]LogEntry, 0, rb.seq-oldest+1)
	for s := oldest; s <= rb.seq; s++ {
		out = append(out, rb.entries[rb.slot(s)])
	}
	return out
}

func (rb *RingBuffer) oldest() uint64 {
	if size := uint64(len(rb.entries)); rb.seq > size {
		return rb.seq - size + 1
	}
	return 1
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.seq == 0 {
		return 0
	}
	return int(rb.seq - rb.oldest() + 1)
}
