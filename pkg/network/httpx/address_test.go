package httpx

import (
	"net"
	"testing"
)

type testListener struct {
	addr net.TCPAddr
}

func (tl testListener) Accept() (net.Conn, error) { return nil, nil }
func (tl testListener) Close() error              { return nil }
func (tl testListener) Addr() net.Addr            { return &tl.addr }

func NewTCP(port int) Listener {
	return Listener{testListener{addr: net.TCPAddr{Port: port}}}
}

func TestBuildAddress(t *testing.T) {
	tests := []struct {
		addr string
		ls   Listener
		rez  string
	}{
		{addr: ":", ls: NewTCP(0), rez: "localhost"},
		{addr: "", ls: NewTCP(393), rez: "localhost:393"},
		{addr: ":11733", ls: NewTCP(11733), rez: "localhost:11733"},
		{addr: ":11733", ls: NewTCP(11734), rez: "localhost:11734"},
		{addr: "host:8080", ls: NewTCP(8080), rez: "host:8080"},
		{addr: "host:8080", ls: NewTCP(8081), rez: "host:8081"},
		{addr: ":80", ls: NewTCP(80), rez: "localhost"},
		{addr: ":443", ls: NewTCP(443), rez: "localhost"},
		{addr: "[::]", ls: NewTCP(0), rez: "[::]"},
	}

	for _, test := range tests {
		address := buildAddress(test.addr, test.ls)
		if address != test.rez {
			t.Errorf("expected %v, got %v", test.rez, address)
		}
	}
}

func TestExtractHost(t *testing.T) {
	for in, want := range map[string]string{
		"host:80":    "host",
		"host":       "host",
		"[::1]:8080": "::1",
		":8080":      "",
	} {
		if got := extractHost(in); got != want {
			t.Errorf("extractHost(%v) = %v, want %v", in, got, want)
		}
	}
}
