// Package deferred implements a coalescing handle that lets any goroutine
// ask an event loop to run a callback later, on the loop's own goroutine,
// without piling up duplicate runs if it is asked more than once before the
// loop gets around to it.
//
// This stands in for the embedding event-loop implementation that the
// stream core is specified against but does not itself provide (see
// stream.Stream's deferredResume / deferredSeek handles). A real
// integration (e.g. into an existing GUI or service event loop) would
// implement Loop against that loop's native "run this on my thread"
// primitive instead of EventLoop below.
package deferred

import (
	"sync"
	"sync/atomic"
)

// Loop is the event-loop contract a Handle schedules onto. Post must be
// safe to call from any goroutine and must not block; it queues fn to run
// later on the loop's own goroutine.
type Loop interface {
	Post(fn func())
}

// Handle is a coalescing deferred task bound to one Loop and one callback.
// Calling Schedule any number of times before the callback has started
// running results in exactly one execution. The pending mark is cleared
// just before the callback is called, so calling Schedule once a run has
// started (including from inside the callback) schedules a new, separate
// run. The zero value is not usable; construct with New.
type Handle struct {
	loop Loop
	fn   func()

	mu      sync.Mutex
	pending bool
}

// New creates a Handle that posts fn to loop when scheduled.
func New(loop Loop, fn func()) *Handle {
	return &Handle{loop: loop, fn: fn}
}

// Schedule requests that fn run once on the event loop. If a previously
// scheduled run of fn has not started yet, Schedule is a no-op: the
// existing request already covers it.
func (h *Handle) Schedule() {
	h.mu.Lock()
	if h.pending {
		h.mu.Unlock()
		return
	}
	h.pending = true
	h.mu.Unlock()

	h.loop.Post(h.run)
}

func (h *Handle) run() {
	h.mu.Lock()
	h.pending = false
	h.mu.Unlock()

	h.fn()
}

// Cancel clears the pending mark. It does not stop a run that was already
// posted: the posted func calls the callback unconditionally, whatever the
// Loop. Its only effect is that the next Schedule posts a new run even if
// the earlier one has not started yet. Callers that need true cancellation
// should make fn itself check whether it is still relevant, the way
// Stream's deferred seek checks seekSt before acting.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.pending = false
	h.mu.Unlock()
}

// EventLoop is a minimal single-goroutine Loop implementation: a worker
// goroutine draining a channel of posted funcs in order. It is provided so
// this repository's tests and demo have a concrete Loop without pulling in
// an external event-loop library, matching the original design's "a single
// event-loop thread" scheduling model (see package stream).
type EventLoop struct {
	tasks  chan func()
	done   chan struct{}
	posted atomic.Int64
}

// NewEventLoop starts a new EventLoop goroutine with the given task queue
// depth. Call Stop to shut it down.
func NewEventLoop(queueDepth int) *EventLoop {
	l := &EventLoop{
		tasks: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *EventLoop) run() {
	defer close(l.done)
	for fn := range l.tasks {
		fn()
	}
}

// Post queues fn to run on the loop's goroutine. Safe to call from any
// goroutine, including the loop's own.
func (l *EventLoop) Post(fn func()) {
	l.posted.Add(1)
	l.tasks <- fn
}

// Posted returns the number of funcs handed to Post so far. Exposed mainly
// for tests that need to observe, synchronously, whether a deferred task
// was scheduled at all (as opposed to whether it has finished running,
// which happens asynchronously on the loop goroutine).
func (l *EventLoop) Posted() int64 {
	return l.posted.Load()
}

// Stop closes the task queue and waits for the loop goroutine to drain it
// and exit. Do not call Post after Stop.
func (l *EventLoop) Stop() {
	close(l.tasks)
	<-l.done
}
