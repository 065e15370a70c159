package socket

import (
	"testing"
)

func TestFailOnPortInUse(t *testing.T) {
	l, err := NewUDP(41234)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer l.Close()
	_, err = NewUDP(41234)
	if err == nil {
		t.Errorf("expected busy port error, but got none")
	}
	if !IsPortBusyError(err) {
		t.Errorf("expected a busy port error, got %v", err)
	}
}

func TestUDPPortRoll(t *testing.T) {
	l, err := NewUDPPortRoll(41235)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer l.Close()
	l2, err := NewUDPPortRoll(41235)
	if err != nil {
		t.Fatalf("expected no port error, but got %v", err)
	}
	defer l2.Close()
	if l.LocalAddr().String() == l2.LocalAddr().String() {
		t.Errorf("expected different ports")
	}
}
