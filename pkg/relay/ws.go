package relay

import (
	"context"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/network/websocket"
)

// wsConn is a Conn over a websocket.
type wsConn struct {
	ws  *websocket.Connection
	in  chan Message
	log *logger.Logger
}

// NewConn starts reading the socket as relay messages.
func NewConn(ws *websocket.Connection, log *logger.Logger) Conn {
	c := &wsConn{ws: ws, in: make(chan Message, 8), log: log}
	ws.SetMessageHandler(func(data []byte) {
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Err(err).Msg("bad relay message")
			return
		}
		select {
		case c.in <- m:
		case <-ws.Done():
		}
	})
	ws.Listen()
	return c
}

// Dial connects to a relay endpoint.
func Dial(ctx context.Context, address url.URL, log *logger.Logger) (Conn, func(), error) {
	ws, err := websocket.NewClient(ctx, address, nil, log)
	if err != nil {
		return nil, nil, err
	}
	return NewConn(ws, log), ws.Close, nil
}

func (c *wsConn) Send(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.ws.Write(data)
}

func (c *wsConn) Messages() <-chan Message { return c.in }
func (c *wsConn) Closed() <-chan struct{}  { return c.ws.Done() }
