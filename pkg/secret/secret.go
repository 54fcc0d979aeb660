// Package secret provides fixed-capacity buffers for key material that are
// zeroed when their scope ends.
package secret

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrTooLarge is returned when data exceeds a buffer's capacity.
var ErrTooLarge = errors.New("secret exceeds buffer capacity")

// Buffer holds secret bytes in storage allocated once at construction.
// The zero value has no capacity.
type Buffer struct {
	data []byte
	n    int
}

// New allocates a buffer with the given capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Set replaces the contents with a copy of p. The previous contents are
// wiped first. The caller still owns p.
func (b *Buffer) Set(p []byte) error {
	if len(p) > len(b.data) {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, len(p), len(b.data))
	}
	b.Wipe()
	b.n = copy(b.data, p)
	return nil
}

// Bytes returns the live contents. The slice aliases the buffer and is
// invalidated by Wipe.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Len returns the number of bytes held.
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Empty reports whether the buffer holds no data.
func (b *Buffer) Empty() bool {
	return b.n == 0
}

// Equal compares the contents with p in constant time.
func (b *Buffer) Equal(p []byte) bool {
	return subtle.ConstantTimeCompare(b.Bytes(), p) == 1
}

// Wipe zeroes the whole backing array and empties the buffer.
func (b *Buffer) Wipe() {
	if b == nil {
		return
	}
	Wipe(b.data)
	b.n = 0
}

// IsZero reports whether every byte of the backing array is zero.
func (b *Buffer) IsZero() bool {
	return b == nil || (b.n == 0 && allZero(b.data))
}

// String never reveals the contents.
func (b *Buffer) String() string {
	return fmt.Sprintf("secret.Buffer(%d bytes)", b.Len())
}

// Wipe zeroes p in place.
func Wipe(p []byte) {
	clear(p)
}

// Scope allocates a buffer of the given capacity, passes it to fn and wipes
// it when fn returns or panics.
func Scope(capacity int, fn func(*Buffer) error) error {
	b := New(capacity)
	defer b.Wipe()
	return fn(b)
}

func allZero(p []byte) bool {
	var acc byte
	for _, c := range p {
		acc |= c
	}
	return acc == 0
}
