package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := DefaultUpgrader.NewServer(w, r, nil)
		if err != nil {
			t.Errorf("no socket, %v", err)
			return
		}
		conn.SetMessageHandler(func(m []byte) { _ = conn.Write(m) })
		conn.Listen()
	}))
}

func wsURL(t *testing.T, s *httptest.Server) url.URL {
	t.Helper()
	u, err := url.Parse("ws" + strings.TrimPrefix(s.URL, "http"))
	if err != nil {
		t.Fatal(err)
	}
	return *u
}

func TestEcho(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	client, err := NewClient(context.Background(), wsURL(t, server), nil, nil)
	if err != nil {
		t.Fatalf("couldn't connect, %v", err)
	}
	got := make(chan string, 3)
	client.SetMessageHandler(func(m []byte) { got <- string(m) })
	client.Listen()

	messages := []string{"a", "bb", "ccc"}
	for _, m := range messages {
		if err := client.Write([]byte(m)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for _, want := range messages {
		select {
		case m := <-got:
			if m != want {
				t.Errorf("got %v, want %v", m, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("no echo for %v", want)
		}
	}
	client.Close()
}

func TestWriteAfterClose(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	client, err := NewClient(context.Background(), wsURL(t, server), nil, nil)
	if err != nil {
		t.Fatalf("couldn't connect, %v", err)
	}
	done := client.Listen()
	client.Close()
	client.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("connection is not done after close")
	}
	if err := client.Write([]byte("x")); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestNewUpgraderOrigin(t *testing.T) {
	u := NewUpgrader("https://a.com")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://b.com")
	if u.CheckOrigin(r) {
		t.Errorf("foreign origin should be rejected")
	}
	r.Header.Set("Origin", "https://a.com")
	if !u.CheckOrigin(r) {
		t.Errorf("own origin should be accepted")
	}
	if !NewUpgrader("*").CheckOrigin(r) {
		t.Errorf("* should accept everything")
	}
}
