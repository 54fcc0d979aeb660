package secret

import (
	"errors"
	"strings"
	"testing"
)

func TestBufferSetAndWipe(t *testing.T) {
	b := New(8)
	if !b.IsZero() || !b.Empty() {
		t.Fatalf("new buffer should be zero")
	}

	if err := b.Set([]byte("abcd")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if string(b.Bytes()) != "abcd" || b.Len() != 4 || b.Cap() != 8 {
		t.Fatalf("unexpected contents %q len=%d cap=%d", b.Bytes(), b.Len(), b.Cap())
	}

	if err := b.Set([]byte("xy")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if string(b.Bytes()) != "xy" {
		t.Fatalf("expected overwrite, got %q", b.Bytes())
	}
	// bytes beyond the new length must not keep the old secret
	if b.data[2] != 0 || b.data[3] != 0 {
		t.Fatalf("stale bytes left after Set: %v", b.data)
	}

	b.Wipe()
	if !b.IsZero() {
		t.Fatalf("expected zero buffer after Wipe, got %v", b.data)
	}
}

func TestBufferSetTooLarge(t *testing.T) {
	b := New(2)
	err := b.Set([]byte("abc"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if !b.Empty() {
		t.Fatalf("rejected Set must not modify buffer")
	}
}

func TestBufferEqual(t *testing.T) {
	b := New(4)
	_ = b.Set([]byte{1, 2, 3})
	if !b.Equal([]byte{1, 2, 3}) {
		t.Errorf("expected equal")
	}
	if b.Equal([]byte{1, 2, 4}) || b.Equal([]byte{1, 2}) {
		t.Errorf("expected not equal")
	}
}

func TestBufferString(t *testing.T) {
	b := New(4)
	_ = b.Set([]byte("1234"))
	if strings.Contains(b.String(), "1234") {
		t.Fatalf("String leaked contents: %s", b.String())
	}
}

func TestNilBufferWipe(t *testing.T) {
	var b *Buffer
	b.Wipe()
	if !b.IsZero() {
		t.Fatalf("nil buffer should report zero")
	}
}

func TestScopeWipesOnReturnAndPanic(t *testing.T) {
	var kept *Buffer
	err := Scope(4, func(b *Buffer) error {
		kept = b
		return b.Set([]byte("key"))
	})
	if err != nil {
		t.Fatalf("Scope: %v", err)
	}
	if !kept.IsZero() {
		t.Fatalf("buffer not wiped after scope")
	}

	func() {
		defer func() { _ = recover() }()
		_ = Scope(4, func(b *Buffer) error {
			kept = b
			_ = b.Set([]byte("key"))
			panic("boom")
		})
	}()
	if !kept.IsZero() {
		t.Fatalf("buffer not wiped after panic")
	}
}
