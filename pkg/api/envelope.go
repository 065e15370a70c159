package api

import "github.com/goccy/go-json"

// Data channel envelope types.
const (
	EnvelopeMessage = "message"
	EnvelopeMeta    = "meta"
	EnvelopeViews   = "views"
)

// Envelope is the data channel message format.
// Viewers may send chat text in Content instead of Body.
type Envelope struct {
	Type    string          `json:"type,omitempty"`
	Id      string          `json:"id,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Meta is the publisher-supplied description of the broadcast.
type Meta struct {
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type outEnvelope struct {
	Type string `json:"type"`
	Id   string `json:"id,omitempty"`
	Body any    `json:"body"`
}

// ParseEnvelope decodes a data channel message.
// A message type is assumed when the type is missing.
func ParseEnvelope(data []byte) (*Envelope, error) {
	e, err := UnwrapChecked[Envelope](data)
	if err != nil {
		return nil, err
	}
	if e.Type == "" {
		e.Type = EnvelopeMessage
	}
	switch e.Type {
	case EnvelopeMessage, EnvelopeMeta, EnvelopeViews:
	default:
		return nil, ErrMalformed
	}
	if len(e.Body) == 0 && len(e.Content) > 0 {
		e.Body, e.Content = e.Content, nil
	}
	return e, nil
}

// Normalized returns the canonical {type,id,body} encoding of e.
func (e *Envelope) Normalized() ([]byte, error) {
	var body any
	if len(e.Body) > 0 {
		body = e.Body
	}
	return json.Marshal(outEnvelope{Type: e.Type, Id: e.Id, Body: body})
}

func MessageEnvelope(id string, body any) ([]byte, error) {
	return json.Marshal(outEnvelope{Type: EnvelopeMessage, Id: id, Body: body})
}

func ViewsEnvelope(n int) ([]byte, error) {
	return json.Marshal(outEnvelope{Type: EnvelopeViews, Body: n})
}
