// Package qjson implements the minimal event-driven JSON watcher the track
// request needs: scan a streamed JSON document for a single top-level
// string field and report it once the document ends. It is not a general
// JSON decoder.
//
// This mirrors the two-state SAX-style state machine of the producer this
// repository is modeled on (which watched a document with an event-driven
// parser): NONE (no interesting key armed) and URL (the next string token
// at the top level is the value to capture).
package qjson

import (
	"encoding/json"
	"fmt"
	"io"
)

// ErrMissingField is returned by ScanTopLevelString when the document ends
// without the requested field ever appearing as a top-level string.
var ErrMissingField = fmt.Errorf("qjson: field not found in response")

type state int

const (
	stateNone state = iota
	stateArmed
)

// ScanTopLevelString reads one JSON document (expected to be a top-level
// object) from r, token by token, and returns the string value of the
// field named key if it appears directly under the root object. Nested
// objects and arrays are skipped without inspection: only top-level
// key/value pairs are examined, matching the narrow contract of the track
// descriptor response this exists to parse.
func ScanTopLevelString(r io.Reader, key string) (string, error) {
	dec := json.NewDecoder(r)

	st := stateNone
	depth := 0
	expectKey := false // meaningful only while depth == 1
	found := false
	var value string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("qjson: decode error: %w", err)
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				depth++
				if depth == 1 {
					expectKey = true
				}
			case '[':
				depth++
			case '}', ']':
				depth--
				if depth == 1 {
					expectKey = true
				}
			}
			continue
		}

		if depth != 1 {
			// Nested value: not inspected.
			continue
		}

		if expectKey {
			if s, ok := tok.(string); ok && s == key {
				st = stateArmed
			} else {
				st = stateNone
			}
			expectKey = false
			continue
		}

		// This token is the value for the key just seen.
		if st == stateArmed {
			if s, ok := tok.(string); ok {
				value = s
				found = true
			}
			st = stateNone
		}
		expectKey = true
	}

	if !found {
		return "", ErrMissingField
	}
	return value, nil
}
