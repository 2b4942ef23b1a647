package stream

import (
	"errors"
	"fmt"
)

// Sentinel errors the stream core produces directly.
var (
	// ErrNotSeekable is returned by Seek when the stream's producer does
	// not support seeking.
	ErrNotSeekable = errors.New("asyncstream: stream is not seekable")

	// ErrNotReady is returned by operations that require the stream to
	// have completed its first successful append before they may be
	// called.
	ErrNotReady = errors.New("asyncstream: stream is not ready")

	// ErrSeekInProgress is returned by Seek if called while another seek
	// is already in flight.
	ErrSeekInProgress = errors.New("asyncstream: seek already in progress")
)

// TransportError wraps an error raised by a Producer's DoResume or DoSeek,
// or reported asynchronously via PostponeError. It is the value stored in
// the stream's postponed field when the producer itself fails; it is
// never the error kind for the core's own invariants (those use the
// sentinels above).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("asyncstream: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
