package session

import (
	"errors"

	"github.com/livecast/livecast/pkg/com"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/monitoring"
	"github.com/pion/webrtc/v4"
)

var ErrExists = errors.New("session exists")

// Registry is the only owner of sessions.
// Callers keep ids and look sessions up when needed.
type Registry struct {
	sessions *com.Map[string, *Session]
	log      *logger.Logger

	// OnDestroy is called once per session after its peer is closed.
	OnDestroy func(*Session)
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{sessions: com.NewMap[string, *Session](), log: log}
}

// Create registers a new session under the id.
// The session is destroyed when its peer connection fails or closes.
func (r *Registry) Create(id string, role Role, peer Peer) (*Session, error) {
	if id == "" {
		id = NewId()
	}
	s := &Session{Id: id, Role: role, Peer: peer}
	if !r.sessions.PutIfAbsent(id, s) {
		return nil, ErrExists
	}
	monitoring.Sessions.WithLabelValues(string(role)).Inc()
	r.log.Debug().Str(logger.SessionField, id).Str("role", string(role)).Msg("session created")

	peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.log.Debug().Str(logger.SessionField, id).Str("state", state.String()).Msg("peer")
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			r.Destroy(id)
		}
	})
	return s, nil
}

// Get returns a session by its id or com.ErrNotFound.
func (r *Registry) Get(id string) (*Session, error) { return r.sessions.Find(id) }

// Destroy removes the session, closes its peer and calls OnDestroy.
// Only the first call for an id does anything.
func (r *Registry) Destroy(id string) bool {
	s, ok := r.sessions.Pop(id)
	if !ok {
		return false
	}
	monitoring.Sessions.WithLabelValues(string(s.Role)).Dec()
	if err := s.Peer.Close(); err != nil {
		r.log.Warn().Err(err).Str(logger.SessionField, id).Msg("peer close")
	}
	if r.OnDestroy != nil {
		r.OnDestroy(s)
	}
	r.log.Debug().Str(logger.SessionField, id).Msg("session destroyed")
	return true
}

func (r *Registry) Len() int { return r.sessions.Len() }

// Close destroys all sessions.
func (r *Registry) Close() {
	var ids []string
	r.sessions.ForEach(func(id string, _ *Session) { ids = append(ids, id) })
	for _, id := range ids {
		r.Destroy(id)
	}
}
