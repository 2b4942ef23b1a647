// Package ringbuf implements a bounded byte ring buffer for single-producer /
// single-consumer use. It is not safe for concurrent use by itself: callers
// that share a Buffer between a producer and a consumer goroutine must
// serialize access with their own lock (the stream package does this with
// its stream mutex).
package ringbuf

// Buffer is a fixed-capacity ring buffer of bytes. The zero value is not
// usable; construct one with New.
//
// Unlike a lock-free SPSC ring buffer, Buffer keeps plain int cursors: it
// is always used from behind a single external mutex, so atomics would
// just be wasted work under an already-held lock.
type Buffer struct {
	data  []byte
	read  int // cursor of the next byte to be consumed
	write int // cursor of the next byte to be appended
	used  int // number of readable bytes currently held
}

// New creates a ring buffer with the given fixed capacity in bytes.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Size returns the number of readable bytes currently held.
func (b *Buffer) Size() int {
	return b.used
}

// Writable returns the number of bytes that can currently be written.
func (b *Buffer) Writable() int {
	return len(b.data) - b.used
}

// Empty reports whether there is no readable data.
func (b *Buffer) Empty() bool {
	return b.used == 0
}

// Full reports whether there is no writable space.
func (b *Buffer) Full() bool {
	return b.used == len(b.data)
}

// ReadWindow returns the largest contiguous readable region starting at the
// read cursor. It may be shorter than Size when the readable data wraps
// around the end of the underlying array; call ReadWindow again after
// Consume to reach the remainder. Returns a zero-length slice iff the
// buffer is empty.
func (b *Buffer) ReadWindow() []byte {
	if b.used == 0 || len(b.data) == 0 {
		return nil
	}
	end := b.read + b.used
	if end > len(b.data) {
		end = len(b.data)
	}
	return b.data[b.read:end]
}

// WriteWindow returns the largest contiguous writable region starting at
// the write cursor. Returns a zero-length slice iff the buffer is full.
func (b *Buffer) WriteWindow() []byte {
	writable := b.Writable()
	if writable == 0 {
		return nil
	}
	end := b.write + writable
	if end > len(b.data) {
		end = len(b.data)
	}
	return b.data[b.write:end]
}

// Consume advances the read cursor by k bytes, as if the caller had copied
// them out of the slice returned by ReadWindow. It panics if k exceeds the
// length of the current read window, since that indicates a caller bug.
func (b *Buffer) Consume(k int) {
	if k == 0 {
		return
	}
	if k < 0 || k > len(b.ReadWindow()) {
		panic("ringbuf: Consume out of range")
	}
	b.read += k
	if b.read >= len(b.data) {
		b.read -= len(b.data)
	}
	b.used -= k
}

// Append advances the write cursor by k bytes, as if the caller had already
// copied them into the slice returned by WriteWindow. It panics if k
// exceeds the length of the current write window.
func (b *Buffer) Append(k int) {
	if k == 0 {
		return
	}
	if k < 0 || k > len(b.WriteWindow()) {
		panic("ringbuf: Append out of range")
	}
	b.write += k
	if b.write >= len(b.data) {
		b.write -= len(b.data)
	}
	b.used += k
}

// AppendBytes copies src into the buffer, wrapping if necessary, and
// advances the write cursor. It copies at most Writable() bytes and
// returns the number of bytes actually copied. At most two memcpys are
// performed: one for the tail window, one for the head window if src did
// not fit before wrapping.
func (b *Buffer) AppendBytes(src []byte) int {
	total := len(src)
	if total > b.Writable() {
		total = b.Writable()
	}
	remaining := total
	for remaining > 0 {
		w := b.WriteWindow()
		n := copy(w, src[total-remaining:total])
		b.Append(n)
		remaining -= n
		if n == 0 {
			break
		}
	}
	return total
}

// Clear empties the buffer, resetting both cursors.
func (b *Buffer) Clear() {
	b.read = 0
	b.write = 0
	b.used = 0
}
