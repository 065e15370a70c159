package httpx

import (
	"net"
	"strconv"

	"github.com/livecast/livecast/pkg/network/socket"
)

const maxPortRollAttempts = 42

type Listener struct {
	net.Listener
}

// NewListener listens TCP on the address.
// With rollPorts it tries next ports when the given one is busy.
func NewListener(address string, rollPorts bool) (*Listener, error) {
	ls, err := net.Listen("tcp", address)
	if err == nil {
		return &Listener{ls}, nil
	}
	if !rollPorts || !socket.IsPortBusyError(err) {
		return nil, err
	}
	host, p, err2 := net.SplitHostPort(address)
	if err2 != nil {
		return nil, err
	}
	port, err2 := strconv.Atoi(p)
	if err2 != nil {
		return nil, err
	}
	for i := port + 1; i < port+maxPortRollAttempts; i++ {
		ls, err = net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(i)))
		if err == nil {
			return &Listener{ls}, nil
		}
	}
	return nil, err
}

func (l Listener) GetPort() int {
	if l.Listener == nil {
		return 0
	}
	if tcp, ok := l.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
