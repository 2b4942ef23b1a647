package remote

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dweymouth/asyncstream/remote/internal/qjson"
)

// TrackHandler is notified of the outcome of a TrackRequest.
type TrackHandler interface {
	OnTrackSuccess(mediaURL string)
	OnTrackError(err error)
}

// TrackRequest resolves a track id and format to a signed, time-limited
// media URL, the way the reference track-request type turns a track id
// into a playable URL after the session is established. It issues one
// signed GET and scans the JSON response for the top-level "url" field
// using qjson, mirroring the narrow event-driven parse the reference
// implementation performs instead of decoding the whole document.
type TrackRequest struct {
	httpGet func(string) (*http.Response, error)
	url     string
	handler TrackHandler
}

// NewTrackRequest builds a TrackRequest for trackID at the given format.
// session must already be established (see SessionClient.GetSession).
func NewTrackRequest(client *Client, session Session, trackID string, formatID int, handler TrackHandler) (*TrackRequest, error) {
	url, err := client.SignURL("track", "getFileUrl", []KV{
		{Key: "format_id", Value: strconv.Itoa(formatID)},
		{Key: "track_id", Value: trackID},
		{Key: "user_auth_token", Value: session.Token},
	}, time.Now())
	if err != nil {
		return nil, err
	}
	return &TrackRequest{httpGet: client.get, url: url, handler: handler}, nil
}

// Start issues the request on a new goroutine and reports the outcome to
// handler asynchronously. It never blocks the caller.
func (r *TrackRequest) Start() {
	go r.run()
}

func (r *TrackRequest) run() {
	resp, err := r.httpGet(r.url)
	if err != nil {
		r.handler.OnTrackError(fmt.Errorf("remote: track request: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.handler.OnTrackError(fmt.Errorf("remote: track request returned %s", dumpForLog(resp)))
		return
	}

	url, err := qjson.ScanTopLevelString(resp.Body, "url")
	if err != nil {
		if err == qjson.ErrMissingField {
			r.handler.OnTrackError(ErrMalformedResponse)
			return
		}
		r.handler.OnTrackError(fmt.Errorf("remote: track request: %w", err))
		return
	}

	r.handler.OnTrackSuccess(url)
}
