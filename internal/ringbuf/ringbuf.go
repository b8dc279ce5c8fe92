// Package ringbuf implements a bounded byte FIFO used to accumulate PTY
// output while no client is attached to a session.
package ringbuf

import (
	"sync"
	"time"
)

// DefaultCapacity is the ring buffer size used by every PTY session: 1 MiB.
const DefaultCapacity = 1024 * 1024

// Buffer is a fixed-capacity byte deque with oldest-eviction append
// semantics. The zero value is not usable; construct with New.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
}

// New creates a ring buffer with the given capacity in bytes.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity), capacity: capacity}
}

// Append adds data to the buffer, evicting the oldest bytes first if the
// buffer would otherwise exceed its capacity. If data alone is at least as
// large as the capacity, only its tail is kept.
func (b *Buffer) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(data)
}

func (b *Buffer) appendLocked(data []byte) {
	if len(data) >= b.capacity {
		b.data = append(b.data[:0], data[len(data)-b.capacity:]...)
		return
	}
	needed := len(b.data) + len(data)
	if needed > b.capacity {
		evict := needed - b.capacity
		b.data = append(b.data[:0], b.data[evict:]...)
	}
	b.data = append(b.data, data...)
}

// Drain returns a copy of the buffer's current contents and empties it.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	b.data = b.data[:0]
	return out
}

// Snapshot returns a copy of the buffer's current contents without
// clearing it, used by ReadBuffer/SearchBuffer which must not consume
// replay data intended for the next Attach.
func (b *Buffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Len returns the current number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// TryDrainTimeout attempts to acquire the buffer's lock within timeout
// and, on success, drains it; on timeout it returns (nil, false) rather
// than blocking the caller indefinitely. Used by Session.Attach, which
// must not stall the request handler under heavy reader-goroutine
// contention. On timeout the spawned goroutine is still waiting for the
// lock and will eventually drain the buffer itself once it acquires it, so that
// replay data is lost rather than returned to the timed-out caller —
// accepted for now since a stalled Attach is worse than an incomplete one.
func (b *Buffer) TryDrainTimeout(timeout time.Duration) ([]byte, bool) {
	done := make(chan []byte, 1)
	go func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if len(b.data) == 0 {
			done <- nil
			return
		}
		out := make([]byte, len(b.data))
		copy(out, b.data)
		b.data = b.data[:0]
		done <- out
	}()
	select {
	case out := <-done:
		return out, true
	case <-time.After(timeout):
		return nil, false
	}
}
