// Package relay carries one HTTP call over a message channel.
//
// It is used when a secure page has to call an insecure endpoint that is not
// on the loopback. The call goes to a relay on the insecure origin:
//
//	relay  -> caller  {"type":"event","event":"load"}
//	caller -> relay   {"type":"request","url":...,"method":...,"headers":{...},"body":...}
//	relay  -> caller  {"type":"response","status":201,"statusText":"Created","headers":{...},"body":...}
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/livecast/livecast/pkg/network/httpx"
)

const DefaultReadyTimeout = 10 * time.Second

const (
	TypeEvent    = "event"
	TypeRequest  = "request"
	TypeResponse = "response"

	EventLoad = "load"
)

var (
	ErrPeerClosed = errors.New("relay closed")
	ErrNotReady   = errors.New("relay is not ready")
)

type Message struct {
	Type       string            `json:"type"`
	Event      string            `json:"event,omitempty"`
	Url        string            `json:"url,omitempty"`
	Method     string            `json:"method,omitempty"`
	Status     int               `json:"status,omitempty"`
	StatusText string            `json:"statusText,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       *string           `json:"body,omitempty"`
}

// Conn is a bidirectional message channel to a relay.
type Conn interface {
	Send(Message) error
	Messages() <-chan Message
	Closed() <-chan struct{}
}

// Post does the request through the relay on the other side of conn.
// The readiness wait is bounded with readyTimeout, the rest with ctx.
func Post(ctx context.Context, conn Conn, req *http.Request, readyTimeout time.Duration) (*http.Response, error) {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	var body *string
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		if len(b) > 0 {
			s := string(b)
			body = &s
		}
	}

	if err := awaitReady(ctx, conn, readyTimeout); err != nil {
		return nil, err
	}

	err := conn.Send(Message{
		Type:    TypeRequest,
		Url:     req.URL.String(),
		Method:  req.Method,
		Headers: httpx.FlattenHeader(req.Header),
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	for {
		select {
		case m, ok := <-conn.Messages():
			if !ok {
				return nil, ErrPeerClosed
			}
			if m.Type != TypeResponse {
				continue
			}
			return toResponse(m, req), nil
		case <-conn.Closed():
			return nil, ErrPeerClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func awaitReady(ctx context.Context, conn Conn, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case m, ok := <-conn.Messages():
			if !ok {
				return ErrPeerClosed
			}
			if m.Type == TypeEvent && m.Event == EventLoad {
				return nil
			}
		case <-conn.Closed():
			return ErrPeerClosed
		case <-timer.C:
			return ErrNotReady
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func toResponse(m Message, req *http.Request) *http.Response {
	var body []byte
	if m.Body != nil {
		body = []byte(*m.Body)
	}
	h := make(http.Header, len(m.Headers))
	for k, v := range m.Headers {
		h.Set(k, v)
	}
	text := m.StatusText
	if text == "" {
		text = http.StatusText(m.Status)
	}
	return &http.Response{
		Status:        strings.TrimSpace(fmt.Sprintf("%d %s", m.Status, text)),
		StatusCode:    m.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
