package remote

import "errors"

// ErrNoSession is returned by SessionClient.GetSession when no session has
// been established yet and no login error has been recorded either: no
// login has been started, or the one in flight has not completed.
var ErrNoSession = errors.New("remote: no session")

// ErrAuth wraps login failures: bad credentials, an auth endpoint that
// rejected the request, or a malformed login response.
var ErrAuth = errors.New("remote: authentication failed")

// ErrMalformedResponse is returned when a response body parses as JSON but
// is missing the field the caller needed out of it.
var ErrMalformedResponse = errors.New("remote: malformed response")
