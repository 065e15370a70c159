// Package api defines the wire formats shared by the edge and media applications.
//
// There are three kinds of messages:
//
//	tunnel frames - JSON objects exchanged over the edge-to-media websocket,
//	                tagged with a type field (env, request, response);
//	envelopes     - JSON objects sent over WebRTC data channels between
//	                a publisher and its viewers (message, meta, views);
//	REST bodies   - channel and live input records of the directory API.
//
// Example:
//
//	{"type":"request","id":"cfv68irdrc3ifu3jn6bg","method":"POST","headers":{"Content-Type":"application/sdp"},"url":"http://localhost/api/whip","body":"v=0..."}
package api

import (
	"errors"

	"github.com/goccy/go-json"
)

var ErrMalformed = errors.New("malformed")

// Typed is the first pass of a two-pass decode: the type tag only.
type Typed struct {
	Type string `json:"type"`
}

// PeekType returns the type tag of a JSON frame.
func PeekType(data []byte) (string, error) {
	var t Typed
	if err := json.Unmarshal(data, &t); err != nil {
		return "", err
	}
	if t.Type == "" {
		return "", ErrMalformed
	}
	return t.Type, nil
}

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}

func UnwrapChecked[T any](data []byte) (*T, error) {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func Wrap(v any) ([]byte, error) { return json.Marshal(v) }
