// Package ring implements the bounded ring buffer that backs buffered
// channels. The fiber scheduler and channel protocol treat it as an
// abstract fixed-capacity FIFO container; they never reach into its
// internals.
package ring

// Buffer is a fixed-capacity circular FIFO of opaque values.
type Buffer struct {
	data  []any
	head  int
	count int
}

// New creates a ring of the given capacity. Capacity must be > 0.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer{data: make([]any, capacity)}
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of values currently stored.
func (b *Buffer) Len() int { return b.count }

// Full reports whether the buffer holds Cap() values.
func (b *Buffer) Full() bool { return b.count == len(b.data) }

// Empty reports whether the buffer holds zero values.
func (b *Buffer) Empty() bool { return b.count == 0 }

// Push appends v at the tail. Caller must ensure !Full().
func (b *Buffer) Push(v any) {
	if b.Full() {
		panic("ring: push on full buffer")
	}
	tail := (b.head + b.count) % len(b.data)
	b.data[tail] = v
	b.count++
}

// Pop removes and returns the head value. Caller must ensure !Empty().
func (b *Buffer) Pop() any {
	if b.Empty() {
		panic("ring: pop on empty buffer")
	}
	v := b.data[b.head]
	b.data[b.head] = nil
	b.head = (b.head + 1) % len(b.data)
	b.count--
	return v
}
