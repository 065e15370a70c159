// Package tunnel forwards HTTP requests from the public edge to the single
// media backend over one websocket connection.
//
// The edge sends request frames with unique ids and waits for the response
// frames with the same ids. Responses may come in any order.
package tunnel

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/com"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/monitoring"
	"github.com/livecast/livecast/pkg/network/httpx"
	"github.com/livecast/livecast/pkg/network/websocket"
)

const DefaultTimeout = 10 * time.Second

var ErrNoBackend = errors.New("no backend connected")

type Server struct {
	slot    com.Slot
	mu      sync.Mutex
	backend *backend

	allow    *AllowList
	proxies  *AllowList
	upgrader *websocket.Upgrader
	env      func() map[string]string
	log      *logger.Logger

	// Timeout bounds the wait for a backend response.
	Timeout time.Duration
}

// backend is one connected media process and its calls in flight.
type backend struct {
	id     com.Uid
	conn   *websocket.Connection
	mu     sync.Mutex
	closed bool
	calls  *com.Map[string, chan *api.ResponseFrame]
}

// NewServer makes the edge side of the tunnel.
// Proxy headers are honoured only from the proxies addresses.
// The env func supplies the values pushed to each new backend.
func NewServer(whitelist, proxies []string, env func() map[string]string, log *logger.Logger) *Server {
	return &Server{
		allow:    NewAllowList(whitelist),
		proxies:  NewAllowList(proxies),
		upgrader: websocket.NewUpgrader("*"),
		env:      env,
		log:      log.Extend(log.With().Str("mod", "tunnel")),
		Timeout:  DefaultTimeout,
	}
}

func (s *Server) HasBackend() bool { return s.current() != nil }

func (s *Server) current() *backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Accept upgrades a backend connection.
func (s *Server) Accept(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r, s.proxies)
	if !s.allow.Allowed(ip) {
		s.log.Warn().Str("ip", ip).Msg("backend is not allowed")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if !s.slot.TryReserve() {
		s.log.Warn().Str("ip", ip).Msg("backend is already connected")
		http.Error(w, "Already connected", http.StatusConflict)
		return
	}

	b := &backend{id: com.NewUid(), calls: com.NewMap[string, chan *api.ResponseFrame]()}
	log := s.log.Extend(s.log.With().Str(logger.ClientField, b.id.Short()))
	conn, err := s.upgrader.NewServer(w, r, log)
	if err != nil {
		s.slot.UnReserve()
		log.Error().Err(err).Msg("backend upgrade")
		return
	}
	b.conn = conn
	conn.SetMessageHandler(func(data []byte) { s.onFrame(b, data, log) })

	s.mu.Lock()
	s.backend = b
	s.mu.Unlock()
	monitoring.BackendConnected.Set(1)

	done := conn.Listen()
	log.Info().Str(logger.DirectionField, "←").Str("ip", ip).Msg("backend connected")

	var items map[string]string
	if s.env != nil {
		items = s.env()
	}
	data, err := api.Wrap(api.NewEnvFrame(items))
	if err == nil {
		err = conn.Write(data)
	}
	if err != nil {
		log.Warn().Err(err).Msg("env push")
	}

	go func() {
		<-done
		s.drop(b)
		log.Info().Str(logger.DirectionField, "x").Msg("backend disconnected")
	}()
}

// drop forgets the backend and fails its calls in flight.
func (s *Server) drop(b *backend) {
	s.mu.Lock()
	if s.backend == b {
		s.backend = nil
	}
	s.mu.Unlock()

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	for _, ch := range b.calls.Drain() {
		ch <- nil
	}
	monitoring.BackendConnected.Set(0)
	s.slot.UnReserve()
}

// Close disconnects the backend if any.
func (s *Server) Close() {
	if b := s.current(); b != nil {
		b.conn.Close()
	}
}

func (s *Server) onFrame(b *backend, data []byte, log *logger.Logger) {
	t, err := api.PeekType(data)
	if err != nil {
		log.Warn().Err(err).Msg("bad frame")
		return
	}
	if t != api.TunnelResponse {
		log.Warn().Str("type", t).Msg("unexpected frame")
		return
	}
	f, err := api.UnwrapChecked[api.ResponseFrame](data)
	if err != nil {
		log.Warn().Err(err).Msg("bad response")
		return
	}
	ch, ok := b.calls.Pop(f.Id)
	if !ok {
		log.Warn().Str(logger.RequestField, f.Id).Msg("unknown or late response")
		return
	}
	ch <- f
}

// call registers a new call of the backend.
func (b *backend) call(id string) (chan *api.ResponseFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	ch := make(chan *api.ResponseFrame, 1)
	b.calls.Put(id, ch)
	return ch, true
}

// Forward sends the request to the backend and writes back its response.
func (s *Server) Forward(w http.ResponseWriter, r *http.Request) {
	b := s.current()
	if b == nil {
		monitoring.TunnelRequests.WithLabelValues(monitoring.OutcomeNoBackend).Inc()
		http.Error(w, "No backend connected", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	id := com.NewUid().String()
	log := s.log.Extend(s.log.With().Str(logger.RequestField, id))

	frame := api.RequestFrame{
		Type:    api.TunnelRequest,
		Id:      id,
		Method:  r.Method,
		Headers: httpx.FlattenHeader(r.Header),
		Url:     absoluteUrl(r),
		Body:    api.BodyOf(body),
	}
	data, err := api.Wrap(frame)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	pending, ok := b.call(id)
	if !ok {
		s.fail(w, monitoring.OutcomeDrained)
		return
	}
	if err = b.conn.Write(data); err != nil {
		if _, ok := b.calls.Pop(id); ok {
			log.Warn().Err(err).Msg("send")
			s.fail(w, monitoring.OutcomeSendFailure)
			return
		}
		// someone else has resolved it already
	}
	log.Debug().Str(logger.DirectionField, "→").Str("method", r.Method).Str("url", r.URL.Path).Msg("forward")

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var resp *api.ResponseFrame
	select {
	case resp = <-pending:
	case <-timer.C:
		if _, ok := b.calls.Pop(id); ok {
			log.Warn().Msg("backend timeout")
			monitoring.TunnelRequests.WithLabelValues(monitoring.OutcomeTimeout).Inc()
			http.Error(w, "Request timeout", http.StatusRequestTimeout)
			return
		}
		resp = <-pending
	case <-r.Context().Done():
		if _, ok := b.calls.Pop(id); ok {
			return
		}
		resp = <-pending
	}

	if resp == nil {
		s.fail(w, monitoring.OutcomeDrained)
		return
	}
	monitoring.TunnelRequests.WithLabelValues(monitoring.OutcomeOk).Inc()
	log.Debug().Str(logger.DirectionField, "←").Int("status", resp.Status).Msg("forward")
	writeResponse(w, resp)
}

func (s *Server) fail(w http.ResponseWriter, outcome string) {
	monitoring.TunnelRequests.WithLabelValues(outcome).Inc()
	http.Error(w, "Backend disconnected", http.StatusBadGateway)
}

func writeResponse(w http.ResponseWriter, f *api.ResponseFrame) {
	h := w.Header()
	for k, v := range f.Headers {
		if k == "Content-Length" {
			continue
		}
		h.Set(k, v)
	}
	status := f.Status
	if status < 100 || status > 999 {
		status = http.StatusBadGateway
	}
	w.WriteHeader(status)
	if f.Body != nil {
		_, _ = io.WriteString(w, *f.Body)
	}
}

func absoluteUrl(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
