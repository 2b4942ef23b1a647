package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dweymouth/asyncstream/deferred"
	"github.com/dweymouth/asyncstream/stream"
)

// HTTPProducer is a stream.Producer that fetches bytes from a media URL
// over HTTP, using Range requests to reposition on seek. It is modeled on
// the reference player's transport: DoResume/DoSeek only arm the
// transport, returning immediately, while the actual blocking network
// read happens on a background goroutine that posts received bytes back
// onto the event loop, the way a libcurl callback hands data back to the
// event loop thread in the reference implementation.
type HTTPProducer struct {
	loop     deferred.Loop
	http     *retryablehttp.Client
	mediaURL string
	logger   stream.Logger

	s *stream.Stream

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	resumeCh chan struct{}
}

// NewHTTPProducer builds an HTTPProducer. Bind must be called with the
// owning Stream before the producer's first DoResume.
func NewHTTPProducer(loop deferred.Loop, httpClient *retryablehttp.Client, mediaURL string, logger stream.Logger) *HTTPProducer {
	if logger == nil {
		logger = nopLogger{}
	}
	return &HTTPProducer{
		loop:     loop,
		http:     httpClient,
		mediaURL: mediaURL,
		logger:   logger,
		resumeCh: make(chan struct{}, 1),
	}
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Bind associates the producer with the Stream it feeds. Must be called
// once, before the Stream is opened for business.
func (p *HTTPProducer) Bind(s *stream.Stream) { p.s = s }

// DoResume implements stream.Producer. Caller holds s.L.
func (p *HTTPProducer) DoResume() error {
	p.mu.Lock()
	if p.started {
		select {
		case p.resumeCh <- struct{}{}:
		default:
		}
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	offset := p.s.Offset()
	go p.pump(offset, false)
	return nil
}

// DoSeek implements stream.Producer. Caller holds s.L. Cancels any
// in-flight transfer and starts a fresh one at the requested offset; the
// new transfer calls SeekDone once its response headers arrive.
func (p *HTTPProducer) DoSeek(offset int64) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.started = true
	p.mu.Unlock()

	go p.pump(offset, true)
	return nil
}

func (p *HTTPProducer) pump(offset int64, isSeek bool) {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.mediaURL, nil)
	if err != nil {
		p.fail(err)
		return
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := p.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return // superseded by a later DoSeek; nothing to report
		}
		p.fail(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		p.fail(fmt.Errorf("remote: unexpected status %s fetching media", resp.Status))
		return
	}

	p.onLoop(func() {
		if offset == 0 && resp.ContentLength >= 0 {
			p.s.SetSize(resp.ContentLength)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			p.s.SetMimeType(ct)
		}
		p.s.SetSeekable(resp.Header.Get("Accept-Ranges") == "bytes" || resp.StatusCode == http.StatusPartialContent)
		if isSeek {
			p.s.SeekDone()
		}
	})

	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			for len(chunk) > 0 {
				var wrote int
				var full, stale bool
				p.onLoop(func() {
					if ctx.Err() != nil {
						// Superseded by a DoSeek: these bytes belong to the old position.
						stale = true
						return
					}
					wrote = p.s.AppendBytes(chunk)
					full = p.s.WritableBytes() == 0
					if full {
						p.s.Pause()
					}
				})
				if stale {
					return
				}
				chunk = chunk[wrote:]
				if full && len(chunk) > 0 {
					select {
					case <-p.resumeCh:
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				p.onLoop(func() {
					if ctx.Err() == nil {
						p.s.CloseTransfer()
					}
				})
				p.mu.Lock()
				p.started = false
				p.mu.Unlock()
				return
			}
			if ctx.Err() != nil {
				return
			}
			p.fail(rerr)
			return
		}
	}
}

func (p *HTTPProducer) fail(err error) {
	p.logger.Printf("asyncstream: remote producer transport error: %v", err)
	p.mu.Lock()
	p.started = false
	p.mu.Unlock()
	p.onLoop(func() { p.s.PostponeError(err) })
}

// onLoop posts fn to the event loop and blocks until it has run,
// acquiring s.L around it. Used so the background fetch goroutine never
// touches Stream state without holding its mutex on the event-loop
// thread, per the Producer contract.
func (p *HTTPProducer) onLoop(fn func()) {
	done := make(chan struct{})
	p.loop.Post(func() {
		p.s.L.Lock()
		fn()
		p.s.L.Unlock()
		close(done)
	})
	<-done
}
