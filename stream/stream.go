// Package stream implements the asynchronous buffered input stream core: a
// bounded ring buffer sitting between an event-loop-driven producer and a
// single synchronous consumer, with backpressure, in-buffer/out-of-buffer
// seek, and cross-thread error delivery.
//
// A Stream's mutex (the L field) is its public synchronization point: the
// embedding decoder locks L before calling any consumer-facing method
// (Read, Seek, IsEOF, IsAvailable, ReadTag, Check) and unlocks it after,
// exactly as the producer's event loop locks L before calling any
// producer-facing method (Pause, CommitWriteBuffer, AppendBytes, SetTag,
// SeekDone, and the Set* metadata setters). Read and Seek release L while
// waiting for data or for a seek to complete, and reacquire it before
// returning.
package stream

import (
	"sync"

	"github.com/dweymouth/asyncstream/deferred"
	"github.com/dweymouth/asyncstream/ringbuf"
)

// Producer is the contract a Stream drives. Implementations plug a
// transport (an HTTP fetcher, a local file, ...) into the core.
//
// Both methods are called on the event-loop thread with the Stream's mutex
// held, and must not block: they arm or reposition the transport and
// return, letting the transport's own callbacks feed bytes back into the
// Stream later via CommitWriteBuffer/AppendBytes (for resume) or
// SeekDone (for seek).
type Producer interface {
	// DoResume is called when the Stream wants bytes to start flowing
	// again. May return an error on a hard failure to even start; the
	// error is postponed and surfaces to the consumer.
	DoResume() error

	// DoSeek is called when the Stream needs the transport repositioned
	// to offset. The producer must arrange a later call to (*Stream).SeekDone
	// on the event-loop thread once the transport is ready to deliver
	// from offset. May return an error, which cancels the seek.
	DoSeek(offset int64) error
}

type seekState int

const (
	seekNone seekState = iota
	seekScheduled
	seekPending
)

func (s seekState) String() string {
	switch s {
	case seekNone:
		return "NONE"
	case seekScheduled:
		return "SCHEDULED"
	case seekPending:
		return "PENDING"
	default:
		return "INVALID"
	}
}

// Config holds the construction-time parameters for a Stream.
type Config struct {
	// URL is the immutable origin identifier, kept for logging and
	// producer bookkeeping; the core does not interpret it.
	URL string

	// BufferSize is the ring buffer's fixed capacity C, in bytes.
	BufferSize int

	// ResumeAt is the low watermark: once readable bytes drop below
	// this, a deferred resume is scheduled. Must be less than
	// BufferSize to give the hysteresis gap the design relies on.
	ResumeAt int

	// Seekable reports whether the producer supports DoSeek. It may
	// also be set later with SetSeekable before the stream becomes
	// ready.
	Seekable bool

	// Producer is the transport driven by this Stream.
	Producer Producer

	// Loop is the event loop deferred resume/seek tasks are posted to.
	Loop deferred.Loop

	// Logger receives operational log lines. Defaults to a no-op
	// logger if nil.
	Logger Logger
}

// Stream is the per-stream asynchronous input stream core.
type Stream struct {
	// L is the stream's single mutex. Consumer- and producer-facing
	// methods assume the caller holds it on entry and leave it held on
	// return (Read and Seek release it only while waiting on the
	// condition variable).
	L *sync.Mutex

	cond *sync.Cond

	url        string
	size       *int64 // nil = unknown
	offset     int64
	seekable   bool
	ready      bool
	open       bool
	paused     bool
	resumeAt   int
	mimeType   string
	seekSt     seekState
	seekOffset int64
	tag        any
	postponed  error

	buffer   *ringbuf.Buffer
	producer Producer
	logger   Logger

	deferredResume *deferred.Handle
	deferredSeek   *deferred.Handle
}

// New constructs a Stream in the not-ready state. The producer is expected
// to begin filling it (via AppendBytes/CommitWriteBuffer) shortly after
// construction.
func New(cfg Config) *Stream {
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	s := &Stream{
		L:        &sync.Mutex{},
		url:      cfg.URL,
		seekable: cfg.Seekable,
		open:     true,
		resumeAt: cfg.ResumeAt,
		buffer:   ringbuf.New(cfg.BufferSize),
		producer: cfg.Producer,
		logger:   logger,
	}
	s.cond = sync.NewCond(s.L)
	s.deferredResume = deferred.New(cfg.Loop, s.runDeferredResume)
	s.deferredSeek = deferred.New(cfg.Loop, s.runDeferredSeek)
	return s
}

// URL returns the stream's origin identifier.
func (s *Stream) URL() string { return s.url }

// Offset returns the logical position of the next byte the consumer will
// read. Caller must hold L.
func (s *Stream) Offset() int64 { return s.offset }

// Ready reports whether the stream has completed its first successful
// append. Caller must hold L.
func (s *Stream) Ready() bool { return s.ready }

// Open reports whether the producer currently holds a live transfer.
// Caller must hold L.
func (s *Stream) Open() bool { return s.open }

// Seekable reports whether the producer supports seeking. Caller must
// hold L.
func (s *Stream) Seekable() bool { return s.seekable }

// Size returns the known total byte length and true, or (0, false) if the
// size is not yet known. Caller must hold L.
func (s *Stream) Size() (int64, bool) {
	if s.size == nil {
		return 0, false
	}
	return *s.size, true
}

// MimeType returns the MIME type set by the producer, if any.
func (s *Stream) MimeType() string { return s.mimeType }

// BufferedBytes returns the number of bytes currently held in the ring
// buffer. Caller must hold L.
func (s *Stream) BufferedBytes() int { return s.buffer.Size() }

// WritableBytes returns the number of bytes the ring buffer can currently
// accept. A producer should check this (or simply rely on AppendBytes's
// short-write return value) before copying more data in, and call Pause
// once it reaches zero. Caller must hold L and be on the event-loop
// thread.
func (s *Stream) WritableBytes() int { return s.buffer.Writable() }

// ---- consumer-facing operations ----

// Read blocks until data is available, EOF is reached, or an error is
// postponed, then copies min(len(dst), contiguous read window) bytes into
// dst (fewer than the readable total when the buffered data wraps),
// consumes them from the ring buffer, and advances Offset. On EOF with an empty
// buffer it returns (0, nil). If an error was postponed, it is returned
// (and cleared) without reading any bytes.
//
// Precondition: caller holds L and is not the event-loop goroutine.
func (s *Stream) Read(dst []byte) (int, error) {
	var window []byte
	for {
		if err := s.takePostponed(); err != nil {
			return 0, err
		}

		window = s.buffer.ReadWindow()
		if len(window) > 0 || s.IsEOF() {
			break
		}

		s.cond.Wait()
	}

	if len(window) == 0 {
		// EOF, nothing buffered.
		return 0, nil
	}

	n := len(dst)
	if n > len(window) {
		n = len(window)
	}
	copy(dst, window[:n])
	s.buffer.Consume(n)
	s.offset += int64(n)

	if s.paused && s.buffer.Size() < s.resumeAt {
		s.deferredResume.Schedule()
	}

	return n, nil
}

// Seek repositions the stream to newOffset. If the target is already
// buffered, the read cursor fast-forwards in place with no transport
// interaction. Otherwise the buffer is discarded and the producer is asked
// to reposition its transport; Seek blocks until that completes (or
// fails).
//
// Precondition: the stream is ready and no other seek is in flight (this
// implementation returns an error rather than relying on caller discipline,
// a stricter superset of the original design's assertion-based
// precondition). Precondition: caller holds L and is not the event-loop
// goroutine.
func (s *Stream) Seek(newOffset int64) error {
	if !s.ready {
		return ErrNotReady
	}
	if s.seekSt != seekNone {
		return ErrSeekInProgress
	}

	if newOffset == s.offset {
		return nil
	}

	if !s.seekable {
		return ErrNotSeekable
	}

	// Fast-forward inside the buffer if possible.
	for newOffset > s.offset {
		window := s.buffer.ReadWindow()
		if len(window) == 0 {
			break
		}
		n := newOffset - s.offset
		if n > int64(len(window)) {
			n = int64(len(window))
		}
		s.buffer.Consume(int(n))
		s.offset += n
	}

	if newOffset == s.offset {
		return nil
	}

	s.logger.Printf("asyncstream: seek to %d not satisfied by buffer (at %d), scheduling transport seek", newOffset, s.offset)

	s.seekOffset = newOffset
	s.offset = newOffset
	s.seekSt = seekScheduled
	s.deferredSeek.Schedule()

	for s.seekSt != seekNone {
		s.cond.Wait()
	}

	return s.takePostponed()
}

// IsEOF reports whether the stream has reached end-of-stream: either the
// size is known and Offset has reached it, or the transfer is closed and
// the buffer is empty. Never blocks. Caller must hold L.
func (s *Stream) IsEOF() bool {
	if s.size != nil && s.offset >= *s.size {
		return true
	}
	return !s.open && s.buffer.Empty()
}

// IsAvailable reports whether data is readable, EOF has been reached, or
// an error is postponed. Never blocks. Caller must hold L.
func (s *Stream) IsAvailable() bool {
	return s.postponed != nil || s.IsEOF() || !s.buffer.Empty()
}

// ReadTag takes ownership of the current tag, if any, clearing the slot.
// Caller must hold L.
func (s *Stream) ReadTag() (tag any, ok bool) {
	tag, s.tag = s.tag, nil
	return tag, tag != nil
}

// Check returns and clears any postponed error without blocking. Caller
// must hold L.
func (s *Stream) Check() error {
	return s.takePostponed()
}

func (s *Stream) takePostponed() error {
	err := s.postponed
	s.postponed = nil
	return err
}

// ---- producer-facing operations (event-loop thread) ----

// Pause tells the Stream that the producer has stopped filling it. The
// producer calls this when its write window has shrunk to zero. Caller
// must hold L and be on the event-loop thread.
func (s *Stream) Pause() {
	s.paused = true
}

// CommitWriteBuffer advances the ring buffer's write cursor by n bytes
// already written directly into the slice returned by a prior
// WriteWindow-style access, flips Ready on first call, and wakes any
// waiting consumer. Caller must hold L and be on the event-loop thread.
func (s *Stream) CommitWriteBuffer(n int) {
	s.buffer.Append(n)
	s.afterAppendLocked()
}

// AppendBytes copies src into the ring buffer (wrapping if necessary),
// flips Ready on first call, and wakes any waiting consumer. It returns
// the number of bytes actually copied, which may be less than len(src) if
// the buffer does not have room; the producer is expected to have checked
// available space (via BufferedBytes/Config.BufferSize) before calling.
// Caller must hold L and be on the event-loop thread.
func (s *Stream) AppendBytes(src []byte) int {
	n := s.buffer.AppendBytes(src)
	s.afterAppendLocked()
	return n
}

func (s *Stream) afterAppendLocked() {
	if !s.ready {
		s.ready = true
	}
	s.cond.Broadcast()
}

// SetTag replaces the current tag. The previous tag, if unread, is
// dropped. Caller must hold L and be on the event-loop thread.
func (s *Stream) SetTag(tag any) {
	s.tag = tag
}

// SetSize sets the known total byte length. Must be called before the
// stream becomes ready. Caller must hold L.
func (s *Stream) SetSize(size int64) {
	s.size = &size
}

// SetSeekable sets whether the producer supports seeking. Must be called
// before the stream becomes ready. Caller must hold L.
func (s *Stream) SetSeekable(seekable bool) {
	s.seekable = seekable
}

// SetMimeType sets the stream's MIME type. Must be called before the
// stream becomes ready. Caller must hold L.
func (s *Stream) SetMimeType(mimeType string) {
	s.mimeType = mimeType
}

// SeekDone signals that the producer's transport has been repositioned to
// the offset requested by the most recent DoSeek and is ready to deliver
// from there. Caller must hold L and be on the event-loop thread.
//
// Precondition: a seek is pending (SeekState PENDING). Calling this
// without a pending seek is a caller bug and is logged but otherwise
// ignored, rather than panicking, since a spurious call here should never
// be allowed to take down the event loop.
func (s *Stream) SeekDone() {
	if s.seekSt != seekPending {
		s.logger.Printf("asyncstream: SeekDone called with seek state %v, ignoring", s.seekSt)
		return
	}
	s.open = true
	s.seekSt = seekNone
	s.cond.Broadcast()
}

// CloseTransfer signals end-of-stream: the producer's transport has
// finished delivering data and will deliver no more without a further
// Seek. Any bytes already in the buffer remain readable; Read only
// reports EOF once the buffer has been drained. Caller must hold L and
// be on the event-loop thread.
func (s *Stream) CloseTransfer() {
	s.open = false
	s.cond.Broadcast()
}

// PostponeError lets a producer report an asynchronous transport failure
// that did not originate as the return value of DoResume or DoSeek — for
// example, a read error on a connection the producer had already armed
// successfully. At most one postponed error is retained: if one is
// already pending and unread, this call is a no-op, preserving
// first-error-wins semantics rather than queuing. Caller must hold L and
// be on the event-loop thread.
func (s *Stream) PostponeError(err error) {
	if s.postponed != nil {
		return
	}
	s.postponed = &TransportError{Err: err}
	s.cond.Broadcast()
}

// ---- deferred tasks, run on the event loop ----

func (s *Stream) runDeferredResume() {
	s.L.Lock()
	defer s.L.Unlock()

	if err := s.resumeLocked(); err != nil {
		s.postponed = &TransportError{Err: err}
		s.cond.Broadcast()
	}
}

func (s *Stream) runDeferredSeek() {
	s.L.Lock()
	defer s.L.Unlock()

	if s.seekSt != seekScheduled {
		return
	}

	if err := s.resumeLocked(); err != nil {
		s.seekSt = seekNone
		s.postponed = &TransportError{Err: err}
		s.cond.Broadcast()
		return
	}

	s.seekSt = seekPending
	s.buffer.Clear()
	s.paused = false

	if err := s.producer.DoSeek(s.seekOffset); err != nil {
		s.seekSt = seekNone
		s.postponed = &TransportError{Err: err}
		s.cond.Broadcast()
		return
	}
}

// resumeLocked asks the producer to resume if currently paused. It is
// shared by the deferred-resume task and the deferred-seek task, which
// must resume the producer before cancelling its current transfer and
// issuing a new seek -- matching the source design's requirement that a
// seek first resumes a paused transfer so DoSeek is never called on a
// producer the Stream itself stalled.
func (s *Stream) resumeLocked() error {
	if !s.paused {
		return nil
	}
	s.paused = false
	return s.producer.DoResume()
}
