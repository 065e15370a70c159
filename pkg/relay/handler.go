package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/network/websocket"
	"github.com/livecast/livecast/pkg/tunnel"
)

// Handler is the relay endpoint on the insecure origin.
// It performs relayed calls against the local handler.
type Handler struct {
	local    http.Handler
	upgrader *websocket.Upgrader
	timeout  time.Duration
	log      *logger.Logger
}

func NewHandler(local http.Handler, timeout time.Duration, log *logger.Logger) *Handler {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	return &Handler{
		local:    local,
		upgrader: websocket.NewUpgrader("*"),
		timeout:  timeout,
		log:      log.Extend(log.With().Str("mod", "relay")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.NewServer(w, r, h.log)
	if err != nil {
		h.log.Warn().Err(err).Msg("relay upgrade")
		return
	}
	conn := NewConn(ws, h.log)
	go h.serve(conn, ws.Close)
}

func (h *Handler) serve(conn Conn, closeFn func()) {
	defer closeFn()

	if err := conn.Send(Message{Type: TypeEvent, Event: EventLoad}); err != nil {
		return
	}
	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	var req Message
	for req.Type != TypeRequest {
		select {
		case m, ok := <-conn.Messages():
			if !ok {
				return
			}
			req = m
		case <-conn.Closed():
			return
		case <-timer.C:
			h.log.Warn().Msg("no relay request")
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	resp := tunnel.Replay(ctx, h.local, &api.RequestFrame{
		Method:  req.Method,
		Url:     req.Url,
		Headers: req.Headers,
		Body:    req.Body,
	}, h.log)
	h.log.Debug().Str("method", req.Method).Str("url", req.Url).Int("status", resp.Status).Msg("relayed")

	_ = conn.Send(Message{
		Type:       TypeResponse,
		Status:     resp.Status,
		StatusText: http.StatusText(resp.Status),
		Headers:    resp.Headers,
		Body:       resp.Body,
	})
	// the caller closes after reading the response
	select {
	case <-conn.Closed():
	case <-time.After(h.timeout):
	}
}
