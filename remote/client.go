// Package remote implements the signed-URL session and track-resolution
// client that sits in front of the stream core: it turns a track id into
// the media URL a Producer fetches bytes from, the way the client this
// package is modeled on turns a catalog object/method pair into a signed
// request URL after a one-time login.
package remote

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httputil"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/http/httpguts"
)

// KV is one query parameter. Client accepts a slice rather than a map so
// that callers who need repeated keys (a true multimap, as the reference
// client's std::multimap allowed) can supply them; SignURL sorts by key
// using a stable sort, which reproduces a multimap's iteration order
// exactly when keys repeat.
type KV struct {
	Key, Value string
}

// Client holds the per-catalog signing credentials shared by SessionClient
// and TrackRequest. It has no mutable state of its own beyond the HTTP
// client, so a single Client can be reused across goroutines freely.
type Client struct {
	BaseURL   string
	AppID     string
	AppSecret string
	HTTP      *retryablehttp.Client
}

// NewClient builds a Client with a retryablehttp.Client configured the way
// the rest of this module's HTTP producer expects: at most three retries
// with the library's default backoff, no logging by default (callers wire
// their own via HTTP.Logger).
func NewClient(baseURL, appID, appSecret string) *Client {
	hc := retryablehttp.NewClient()
	hc.Logger = nil
	hc.RetryMax = 3
	return &Client{
		BaseURL:   baseURL,
		AppID:     appID,
		AppSecret: appSecret,
		HTTP:      hc,
	}
}

// SignURL builds a signed request URL for the given catalog object/method,
// the way MakeSignedUrl does: base_url + object + "/" + method, followed
// by the query parameters (sorted lexicographically by key, ties broken
// by their original relative order), then app_id, then request_ts, then
// an md5 hex digest (request_sig) computed over
// object + method + concat(key+value for each sorted param) + request_ts + app_secret.
//
// Parameter values are not percent-escaped, matching the reference
// client's own TODO-flagged behavior; SignURL instead rejects any key or
// value that is not a valid HTTP header field value, which rules out
// control characters such as CR and LF (and so header smuggling). URL
// delimiters such as '&', '=', '?' and '#' are accepted and written as-is.
func (c *Client) SignURL(object, method string, params []KV, now time.Time) (string, error) {
	for _, kv := range params {
		if !validParamValue(kv.Key) || !validParamValue(kv.Value) {
			return "", fmt.Errorf("remote: invalid query parameter %q=%q", kv.Key, kv.Value)
		}
	}

	sorted := make([]KV, len(params))
	copy(sorted, params)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var uri strings.Builder
	uri.WriteString(c.BaseURL)
	uri.WriteString(object)
	uri.WriteByte('/')
	uri.WriteString(method)

	first := true
	writeParam := func(k, v string) {
		if first {
			uri.WriteByte('?')
			first = false
		} else {
			uri.WriteByte('&')
		}
		uri.WriteString(k)
		uri.WriteByte('=')
		uri.WriteString(v)
	}

	var concat strings.Builder
	concat.WriteString(object)
	concat.WriteString(method)
	for _, kv := range sorted {
		writeParam(kv.Key, kv.Value)
		concat.WriteString(kv.Key)
		concat.WriteString(kv.Value)
	}

	writeParam("app_id", c.AppID)

	ts := strconv.FormatInt(now.Unix(), 10)
	writeParam("request_ts", ts)
	concat.WriteString(ts)
	concat.WriteString(c.AppSecret)

	sum := md5.Sum([]byte(concat.String()))
	writeParam("request_sig", hex.EncodeToString(sum[:]))

	return uri.String(), nil
}

func validParamValue(s string) bool {
	return httpguts.ValidHeaderFieldValue(s)
}

// get issues a signed GET and returns the response, having already
// consumed and discarded nothing: callers own resp.Body.
func (c *Client) get(url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// dumpForLog renders a response's status line and headers for error messages without
// pulling the body into memory; used only on the error paths.
func dumpForLog(resp *http.Response) string {
	b, err := httputil.DumpResponse(resp, false)
	if err != nil {
		return resp.Status
	}
	return strings.TrimSpace(string(b))
}
