// Package arena provides the owned backing store for a simulated heap.
//
// An Arena is a fixed-size byte buffer representing the address space one
// allocator instance manages. Buffers are heap-backed by default; on unix
// an anonymous memory mapping can be used instead (NewMapped), which keeps
// the simulated heap out of the Go heap profile.
package arena

// Arena is a fixed-capacity contiguous byte buffer. The zero value is an
// empty arena; use New or NewMapped.
type Arena struct {
	data  []byte
	unmap func() error
}

// New returns a heap-backed arena of the given size.
func New(size int) *Arena {
	if size < 0 {
		size = 0
	}
	return &Arena{data: make([]byte, size)}
}

// NewBacking returns the preferred backing store for a simulated heap:
// an anonymous mapping where the platform provides one, heap-backed when
// mapping fails. Allocator instances live for the process, so the
// mapping is never unmapped explicitly.
func NewBacking(size int) *Arena {
	a, err := NewMapped(size)
	if err != nil {
		return New(size)
	}
	return a
}

// Bytes returns the backing buffer. The slice remains valid until Close.
func (a *Arena) Bytes() []byte {
	return a.data
}

// Len returns the arena capacity in bytes.
func (a *Arena) Len() int {
	return len(a.data)
}

// Zero clears the entire buffer.
func (a *Arena) Zero() {
	clear(a.data)
}

// Close releases a mapped arena. Heap-backed arenas and double closes are
// no-ops.
func (a *Arena) Close() error {
	if a.unmap == nil {
		return nil
	}
	unmap := a.unmap
	a.unmap = nil
	a.data = nil
	return unmap()
}
