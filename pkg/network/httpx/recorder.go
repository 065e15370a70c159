package httpx

import (
	"bytes"
	"net/http"
)

// Recorder is an in-memory http.ResponseWriter.
// It captures a response of a local handler to be sent elsewhere.
type Recorder struct {
	Status int
	header http.Header
	Body   bytes.Buffer
	wrote  bool
}

func NewRecorder() *Recorder { return &Recorder{Status: http.StatusOK, header: make(http.Header)} }

func (r *Recorder) Header() http.Header { return r.header }

func (r *Recorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.WriteHeader(http.StatusOK)
	}
	return r.Body.Write(b)
}

func (r *Recorder) WriteHeader(code int) {
	if r.wrote {
		return
	}
	r.wrote = true
	r.Status = code
}

// Flatten returns single-valued headers, multiple values are comma-joined.
func (r *Recorder) Flatten() map[string]string { return FlattenHeader(r.header) }

func FlattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = joinValues(h.Values(k))
	}
	return out
}

func joinValues(v []string) string {
	switch len(v) {
	case 0:
		return ""
	case 1:
		return v[0]
	}
	var b bytes.Buffer
	for i, s := range v {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s)
	}
	return b.String()
}
