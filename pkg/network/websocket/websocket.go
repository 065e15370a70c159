package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livecast/livecast/pkg/logger"
)

const (
	maxMessageSize = 4 * 1024 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
	sendQueue      = 64
)

var ErrClosed = errors.New("socket closed")

type Upgrader struct {
	websocket.Upgrader
}

var DefaultUpgrader = Upgrader{
	Upgrader: websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		WriteBufferPool: &sync.Pool{},
		CheckOrigin:     func(*http.Request) bool { return true },
	},
}

// NewUpgrader makes an upgrader that only accepts the given origin.
// An empty or * origin accepts all.
func NewUpgrader(origin string) *Upgrader {
	u := DefaultUpgrader
	if origin != "" && origin != "*" {
		u.CheckOrigin = func(r *http.Request) bool { return r.Header.Get("Origin") == origin }
	}
	return &u
}

// Connection wraps a websocket with a single reader and a single writer goroutine.
// Messages are text frames.
type Connection struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	pingPong bool
	onMsg    func(message []byte)
	log      *logger.Logger
}

// NewServer upgrades an HTTP request into a server-side connection.
func (u *Upgrader) NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*Connection, error) {
	conn, err := u.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newConnection(conn, true, log), nil
}

// NewClient dials a websocket server.
func NewClient(ctx context.Context, address url.URL, header http.Header, log *logger.Logger) (*Connection, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, address.String(), header)
	if err != nil {
		return nil, err
	}
	return newConnection(conn, false, log), nil
}

func newConnection(conn *websocket.Conn, pingPong bool, log *logger.Logger) *Connection {
	if log == nil {
		log = logger.Default()
	}
	return &Connection{
		conn:     conn,
		send:     make(chan []byte, sendQueue),
		done:     make(chan struct{}),
		pingPong: pingPong,
		log:      log,
	}
}

// SetMessageHandler sets the callback for incoming messages.
// Should be called before Listen.
func (c *Connection) SetMessageHandler(fn func(message []byte)) { c.onMsg = fn }

// Listen starts the read and write pumps.
// The returned channel is closed when the connection is gone.
func (c *Connection) Listen() <-chan struct{} {
	go c.writer()
	go c.reader()
	return c.done
}

func (c *Connection) Done() <-chan struct{} { return c.done }

// Write queues a message for sending.
func (c *Connection) Write(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close sends the close frame and releases the socket. Safe to call many times.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}

func (c *Connection) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// reader pumps messages from the websocket connection to the message callback.
// Serializes all websocket reads.
func (c *Connection) reader() {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	if c.pingPong {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTime))
		c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongTime)) })
	}
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("ws read")
			}
			return
		}
		if c.onMsg != nil {
			c.onMsg(message)
		}
	}
}

// writer pumps messages from the send queue to the websocket connection.
// Serializes all websocket writes.
func (c *Connection) writer() {
	var ping <-chan time.Time
	if c.pingPong {
		ticker := time.NewTicker(pingTime)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Warn().Err(err).Msg("ws write")
				c.Close()
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		}
	}
}
