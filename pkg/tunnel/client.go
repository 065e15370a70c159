package tunnel

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/network"
	"github.com/livecast/livecast/pkg/network/httpx"
	"github.com/livecast/livecast/pkg/network/websocket"
)

// Client is the backend side of the tunnel.
// It replays forwarded requests into a local handler.
type Client struct {
	address url.URL
	handler http.Handler
	retry   time.Duration
	onEnv   func(map[string]string)
	log     *logger.Logger
}

func NewClient(address string, handler http.Handler, retry time.Duration, log *logger.Logger) (*Client, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("not a websocket address: %v", address)
	}
	return &Client{
		address: *u,
		handler: handler,
		retry:   retry,
		log:     log.Extend(log.With().Str("mod", "tunnel")),
	}, nil
}

// OnEnv sets the callback for the environment pushed by the edge.
func (c *Client) OnEnv(fn func(map[string]string)) { c.onEnv = fn }

// Run keeps the client connected until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	retry := network.NewRetryAfter(c.retry)
	for {
		conn, err := websocket.NewClient(ctx, c.address, nil, c.log)
		if err != nil {
			c.log.Warn().Err(err).Msgf("couldn't connect to %v, retry in %v", c.address.String(), retry.Time())
			if !retry.Fail(ctx) {
				return ctx.Err()
			}
			continue
		}
		retry.Success()
		c.log.Info().Str(logger.DirectionField, "→").Msgf("connected to %v", c.address.String())
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Str(logger.DirectionField, "x").Msgf("disconnected, retry in %v", retry.Time())
		if !retry.Fail(ctx) {
			return ctx.Err()
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Connection) {
	conn.SetMessageHandler(func(data []byte) { c.onFrame(ctx, conn, data) })
	done := conn.Listen()
	select {
	case <-done:
	case <-ctx.Done():
		conn.Close()
	}
}

func (c *Client) onFrame(ctx context.Context, conn *websocket.Connection, data []byte) {
	t, err := api.PeekType(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("bad frame")
		return
	}
	switch t {
	case api.TunnelEnv:
		f, err := api.UnwrapChecked[api.EnvFrame](data)
		if err != nil {
			c.log.Warn().Err(err).Msg("bad env")
			return
		}
		c.log.Debug().Int("n", len(f.Items)).Msg("env")
		if c.onEnv != nil {
			c.onEnv(f.Items)
		}
	case api.TunnelRequest:
		f, err := api.UnwrapChecked[api.RequestFrame](data)
		if err != nil {
			c.log.Warn().Err(err).Msg("bad request")
			return
		}
		go c.handle(ctx, conn, f)
	default:
		c.log.Warn().Str("type", t).Msg("unexpected frame")
	}
}

func (c *Client) handle(ctx context.Context, conn *websocket.Connection, f *api.RequestFrame) {
	resp := Replay(ctx, c.handler, f, c.log)
	data, err := api.Wrap(resp)
	if err != nil {
		c.log.Error().Err(err).Str(logger.RequestField, f.Id).Msg("response")
		return
	}
	if err = conn.Write(data); err != nil {
		c.log.Warn().Err(err).Str(logger.RequestField, f.Id).Msg("response is lost")
	}
}

// Replay runs the request frame through the handler and captures the response.
// Handler panics turn into 500.
func Replay(ctx context.Context, h http.Handler, f *api.RequestFrame, log *logger.Logger) (out api.ResponseFrame) {
	out = api.ResponseFrame{Type: api.TunnelResponse, Id: f.Id}
	defer func() {
		if err := recover(); err != nil {
			log.Error().Str(logger.RequestField, f.Id).Msgf("handler panic: %v", err)
			msg := "Internal server error"
			out.Status, out.Headers, out.Body = http.StatusInternalServerError, nil, &msg
		}
	}()

	req, err := http.NewRequestWithContext(ctx, f.Method, f.Url, bytes.NewReader(api.BodyBytes(f.Body)))
	if err != nil {
		msg := err.Error()
		out.Status, out.Body = http.StatusBadRequest, &msg
		return
	}
	for k, v := range f.Headers {
		req.Header.Set(k, v)
	}
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	}
	rec := httpx.NewRecorder()
	h.ServeHTTP(rec, req)

	out.Status = rec.Status
	out.Headers = rec.Flatten()
	out.Body = api.BodyOf(rec.Body.Bytes())
	return
}
