package remote

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"

	"github.com/dweymouth/asyncstream/deferred"
	"github.com/dweymouth/asyncstream/stream"
)

func newTestHTTPClient() *retryablehttp.Client {
	hc := retryablehttp.NewClient()
	hc.Logger = nil
	hc.RetryMax = 0
	return hc
}

func TestHTTPProducerFetchesFullBody(t *testing.T) {
	body := make([]byte, 10000)
	for i := range body {
		body[i] = byte(i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/flac")
		w.Header().Set("Accept-Ranges", "bytes")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	loop := deferred.NewEventLoop(16)
	defer loop.Stop()

	prod := NewHTTPProducer(loop, newTestHTTPClient(), srv.URL, nil)
	s := stream.New(stream.Config{
		URL:        srv.URL,
		BufferSize: 4096,
		ResumeAt:   1024,
		Seekable:   true,
		Producer:   prod,
		Loop:       loop,
	})
	prod.Bind(s)

	s.L.Lock()
	require.NoError(t, prod.DoResume())
	s.L.Unlock()

	var got []byte
	buf := make([]byte, 1024)
	for len(got) < len(body) {
		s.L.Lock()
		n, err := s.Read(buf)
		s.L.Unlock()
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}

	require.Equal(t, body, got)
	require.Equal(t, "audio/flac", func() string { s.L.Lock(); defer s.L.Unlock(); return s.MimeType() }())
}

func TestHTTPProducerSeekIssuesRangeRequestAndCallsSeekDone(t *testing.T) {
	body := make([]byte, 5000)
	for i := range body {
		body[i] = byte(i)
	}
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			gotRange = rng
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(body[4000:])
			return
		}
		w.Header().Set("Accept-Ranges", "bytes")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	loop := deferred.NewEventLoop(16)
	defer loop.Stop()

	prod := NewHTTPProducer(loop, newTestHTTPClient(), srv.URL, nil)
	s := stream.New(stream.Config{
		URL:        srv.URL,
		BufferSize: 2048,
		ResumeAt:   512,
		Seekable:   true,
		Producer:   prod,
		Loop:       loop,
	})
	prod.Bind(s)

	s.L.Lock()
	require.NoError(t, prod.DoResume())
	s.L.Unlock()

	buf := make([]byte, 512)
	s.L.Lock()
	_, err := s.Read(buf)
	require.NoError(t, err)
	require.NoError(t, s.Seek(4000))
	require.Equal(t, int64(4000), s.Offset())
	s.L.Unlock()

	require.Equal(t, "bytes=4000-", gotRange)

	var got []byte
	for len(got) < 1000 {
		s.L.Lock()
		n, err := s.Read(buf)
		s.L.Unlock()
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	require.Equal(t, body[4000:], got)
}
