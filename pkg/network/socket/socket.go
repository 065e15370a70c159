package socket

import (
	"errors"
	"net"
	"os"
	"runtime"
	"syscall"
)

const listenAttempts = 42
const udpBufferSize = 16 * 1024 * 1024

var ErrNoPorts = errors.New("no available ports")

// NewUDP opens a UDP socket on the port with enlarged kernel buffers.
// The port 0 means a random one.
func NewUDP(port int) (*net.UDPConn, error) {
	l, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	_ = l.SetReadBuffer(udpBufferSize)
	_ = l.SetWriteBuffer(udpBufferSize)
	return l, nil
}

// NewUDPPortRoll opens a UDP socket on the port or on the next free one.
func NewUDPPortRoll(port int) (*net.UDPConn, error) {
	l, err := NewUDP(port)
	if err == nil {
		return l, nil
	}
	if !IsPortBusyError(err) {
		return nil, err
	}
	for i := port + 1; i < port+listenAttempts; i++ {
		if l, err = NewUDP(i); err == nil {
			return l, nil
		}
	}
	return nil, ErrNoPorts
}

// IsPortBusyError tests if the given error is one of
// the port busy errors.
func IsPortBusyError(err error) bool {
	if err == nil {
		return false
	}
	var eOsSyscall *os.SyscallError
	if !errors.As(err, &eOsSyscall) {
		return false
	}
	var errErrno syscall.Errno
	if !errors.As(eOsSyscall, &errErrno) {
		return false
	}
	if errErrno == syscall.EADDRINUSE {
		return true
	}
	const WSAEADDRINUSE = 10048
	if runtime.GOOS == "windows" && errErrno == WSAEADDRINUSE {
		return true
	}
	return false
}
