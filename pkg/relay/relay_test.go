package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/livecast/livecast/pkg/logger"
)

// pipe is an in-memory Conn, the test plays the relay side.
type pipe struct {
	out    chan Message
	in     chan Message
	closed chan struct{}
}

func newPipe() *pipe {
	return &pipe{out: make(chan Message, 4), in: make(chan Message, 4), closed: make(chan struct{})}
}

func (p *pipe) Send(m Message) error     { p.out <- m; return nil }
func (p *pipe) Messages() <-chan Message { return p.in }
func (p *pipe) Closed() <-chan struct{}  { return p.closed }

func (p *pipe) request() *http.Request {
	r, _ := http.NewRequest(http.MethodPost, "http://10.0.0.2/api/whep", strings.NewReader("v=0"))
	r.Header.Set("Content-Type", "application/sdp")
	return r
}

func TestPost(t *testing.T) {
	t.Parallel()
	p := newPipe()
	go func() {
		p.in <- Message{Type: TypeEvent, Event: "noise"}
		p.in <- Message{Type: TypeEvent, Event: EventLoad}
		req := <-p.out
		if req.Type != TypeRequest || req.Method != http.MethodPost || req.Body == nil || *req.Body != "v=0" {
			t.Errorf("bad request %+v", req)
		}
		if req.Headers["Content-Type"] != "application/sdp" {
			t.Errorf("bad headers %v", req.Headers)
		}
		body := "answer"
		p.in <- Message{Type: TypeResponse, Status: 201, StatusText: "Created",
			Headers: map[string]string{"Location": "/resource/1"}, Body: &body}
	}()

	resp, err := Post(context.Background(), p, p.request(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 201 || string(b) != "answer" || resp.Header.Get("Location") != "/resource/1" {
		t.Errorf("bad response %v %v %v", resp.StatusCode, string(b), resp.Header)
	}
	if resp.Status != "201 Created" {
		t.Errorf("status line %v", resp.Status)
	}
}

func TestPostFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		relay func(p *pipe)
		err   error
	}{
		{name: "never ready", relay: func(*pipe) {}, err: ErrNotReady},
		{name: "closed before ready", relay: func(p *pipe) { close(p.closed) }, err: ErrPeerClosed},
		{
			name: "closed before response",
			relay: func(p *pipe) {
				p.in <- Message{Type: TypeEvent, Event: EventLoad}
				<-p.out
				close(p.closed)
			},
			err: ErrPeerClosed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipe()
			go tt.relay(p)
			_, err := Post(context.Background(), p, p.request(), 50*time.Millisecond)
			if !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestNeedsRelay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		page, target string
		want         bool
	}{
		{page: "https://app.com", target: "http://10.0.0.2/api/whep", want: true},
		{page: "https://app.com", target: "http://media.lan:8080/api/whep", want: true},
		{page: "https://app.com", target: "https://media.com/api/whep"},
		{page: "http://app.com", target: "http://10.0.0.2/api/whep"},
		{page: "https://app.com", target: "http://localhost:11733/api/whep"},
		{page: "https://app.com", target: "http://127.0.0.1/api/whep"},
		{page: "https://app.com", target: "http://[::1]/api/whep"},
	}
	for _, tt := range tests {
		page, _ := url.Parse(tt.page)
		target, _ := url.Parse(tt.target)
		if got := NeedsRelay(page, target); got != tt.want {
			t.Errorf("NeedsRelay(%v, %v) = %v, want %v", tt.page, tt.target, got, tt.want)
		}
	}
}

func TestRelayEndpoint(t *testing.T) {
	local := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("Location", "/resource/42")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("answer to " + string(b)))
	})
	s := httptest.NewServer(NewHandler(local, time.Second, logger.Default()))
	defer s.Close()

	address, _ := url.Parse("ws" + strings.TrimPrefix(s.URL, "http"))
	conn, closeFn, err := Dial(context.Background(), *address, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	r, _ := http.NewRequest(http.MethodPost, s.URL+"/api/whep", strings.NewReader("offer"))
	resp, err := Post(context.Background(), conn, r, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated || string(b) != "answer to offer" {
		t.Errorf("got %v %v", resp.StatusCode, string(b))
	}
	if resp.Header.Get("Location") != "/resource/42" {
		t.Errorf("no location %v", resp.Header)
	}
}

func TestTransportDirect(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("direct"))
	}))
	defer s.Close()

	page, _ := url.Parse("https://app.com")
	client := http.Client{Transport: &Transport{Page: page}}
	resp, err := client.Get(s.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "direct" {
		t.Errorf("got %v", string(b))
	}
}
