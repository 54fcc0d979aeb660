package logger

import "sync"

// DefaultRingSize is the capacity used when NewRing is given a non-positive size.
const DefaultRingSize = 16 * 1024

// Ring is a fixed-capacity byte buffer that keeps the most recent log output.
// Older bytes are overwritten once the buffer is full.
type Ring struct {
	mu   sync.Mutex
	buf  []byte
	next int
	full bool
}

// NewRing allocates a ring of the given capacity.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{buf: make([]byte, size)}
}

// Write implements io.Writer. It never fails.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	if n >= len(r.buf) {
		copy(r.buf, p[n-len(r.buf):])
		r.next = 0
		r.full = true
		return n, nil
	}

	c := copy(r.buf[r.next:], p)
	if c < n {
		copy(r.buf, p[c:])
		r.full = true
	}
	r.next = (r.next + n) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	return n, nil
}

// Snapshot returns the buffered bytes in write order.
func (r *Ring) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]byte, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]byte, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Reset discards the buffered bytes.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.next = 0
	r.full = false
}
