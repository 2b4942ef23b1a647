package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBasicWriteRead(t *testing.T) {
	b := New(16)
	require.Equal(t, 16, b.Cap())
	require.True(t, b.Empty())

	n := b.AppendBytes([]byte("hello"))
	require.Equal(t, 5, n)
	require.Equal(t, 5, b.Size())
	require.Equal(t, 11, b.Writable())

	got := make([]byte, len(b.ReadWindow()))
	copy(got, b.ReadWindow())
	b.Consume(len(got))
	require.Equal(t, "hello", string(got))
	require.True(t, b.Empty())
}

func TestWrapAround(t *testing.T) {
	b := New(8)
	require.Equal(t, 8, b.AppendBytes([]byte("abcdefgh")))
	b.Consume(6)
	require.Equal(t, 2, b.Size())

	// write cursor has wrapped to index 0: 6 bytes free at the start of the
	// array, while the readable "gh" sits at its end
	n := b.AppendBytes([]byte("XYZ"))
	require.Equal(t, 3, n)
	require.Equal(t, 5, b.Size())

	var out []byte
	for b.Size() > 0 {
		w := b.ReadWindow()
		out = append(out, w...)
		b.Consume(len(w))
	}
	require.Equal(t, "ghXYZ", string(out))
}

func TestInvariantReadablePlusWritable(t *testing.T) {
	b := New(32)
	for i := 0; i < 100; i++ {
		b.AppendBytes([]byte{byte(i)})
		require.Equal(t, b.Cap(), b.Size()+b.Writable())
		if i%3 == 0 && b.Size() > 0 {
			w := b.ReadWindow()
			b.Consume(len(w) / 2)
		}
		require.Equal(t, b.Cap(), b.Size()+b.Writable())
	}
}

func TestFullBufferRejectsExcessAppend(t *testing.T) {
	b := New(4)
	n := b.AppendBytes([]byte("abcdef"))
	require.Equal(t, 4, n)
	require.True(t, b.Full())
	require.Nil(t, b.WriteWindow())
}

func TestClear(t *testing.T) {
	b := New(8)
	b.AppendBytes([]byte("data"))
	b.Clear()
	require.True(t, b.Empty())
	require.Equal(t, 8, b.Writable())
}

func TestRoundTripChunked(t *testing.T) {
	b := New(64)
	src := make([]byte, 0, 200)
	for i := 0; i < 200; i++ {
		src = append(src, byte(i))
	}

	var out []byte
	chunk := 7
	for i := 0; i < len(src); {
		end := min(i+chunk, len(src))
		for b.Writable() == 0 {
			w := b.ReadWindow()
			out = append(out, w...)
			b.Consume(len(w))
		}
		n := b.AppendBytes(src[i:end])
		i += n
		if n == 0 {
			w := b.ReadWindow()
			out = append(out, w...)
			b.Consume(len(w))
		}
	}
	for b.Size() > 0 {
		w := b.ReadWindow()
		out = append(out, w...)
		b.Consume(len(w))
	}

	require.Equal(t, src, out)
}

func TestConsumeOutOfRangePanics(t *testing.T) {
	b := New(4)
	require.Panics(t, func() { b.Consume(1) })
}

func TestAppendOutOfRangePanics(t *testing.T) {
	b := New(4)
	require.Panics(t, func() { b.Append(5) })
}
