package remote

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingTrackHandler struct {
	done chan struct{}
	url  string
	err  error
}

func newRecordingTrackHandler() *recordingTrackHandler {
	return &recordingTrackHandler{done: make(chan struct{})}
}

func (h *recordingTrackHandler) OnTrackSuccess(url string) {
	h.url = url
	close(h.done)
}

func (h *recordingTrackHandler) OnTrackError(err error) {
	h.err = err
	close(h.done)
}

func (h *recordingTrackHandler) wait(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("track request never completed")
	}
}

func TestTrackRequestSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "5", r.URL.Query().Get("format_id"))
		require.Equal(t, "42", r.URL.Query().Get("track_id"))
		require.Equal(t, "tok", r.URL.Query().Get("user_auth_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"track_id":42,"url":"https://cdn.example/track-42.flac"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	h := newRecordingTrackHandler()
	req, err := NewTrackRequest(c, Session{Token: "tok"}, "42", 5, h)
	require.NoError(t, err)

	req.Start()
	h.wait(t)

	require.NoError(t, h.err)
	require.Equal(t, "https://cdn.example/track-42.flac", h.url)
}

func TestTrackRequestMissingFieldIsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"track_id":42}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	h := newRecordingTrackHandler()
	req, err := NewTrackRequest(c, Session{Token: "tok"}, "42", 5, h)
	require.NoError(t, err)
	req.Start()
	h.wait(t)

	require.ErrorIs(t, h.err, ErrMalformedResponse)
}

func TestTrackRequestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	h := newRecordingTrackHandler()
	req, err := NewTrackRequest(c, Session{Token: "tok"}, "42", 5, h)
	require.NoError(t, err)
	req.Start()
	h.wait(t)

	require.Error(t, h.err)
}
