// Package session keeps track of all the peer connections of the server.
package session

import (
	"sync"

	"github.com/gofrs/uuid"
	"github.com/pion/webrtc/v4"
)

type Role string

const (
	Publisher  Role = "publisher"
	Subscriber Role = "subscriber"
)

// Peer is the part of a peer connection the registry needs.
// *webrtc.PeerConnection implements it.
type Peer interface {
	Close() error
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
}

type Session struct {
	Id   string
	Role Role
	Peer Peer

	mu sync.Mutex
	dc *webrtc.DataChannel
}

// NewId returns a fresh random session id.
func NewId() string { return uuid.Must(uuid.NewV4()).String() }

func (s *Session) SetDataChannel(dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()
}

func (s *Session) DataChannel() *webrtc.DataChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dc
}

func (s *Session) IsPublisher() bool { return s.Role == Publisher }

func (s *Session) String() string { return string(s.Role) + ":" + s.Id }
