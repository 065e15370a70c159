// Package media is the privileged backend process that terminates
// the WebRTC sessions.
package media

import (
	"context"
	"net/http"

	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/monitoring"
	"github.com/livecast/livecast/pkg/negotiator"
	"github.com/livecast/livecast/pkg/network/httpx"
	"github.com/livecast/livecast/pkg/network/webrtc"
	"github.com/livecast/livecast/pkg/service"
	"github.com/livecast/livecast/pkg/tunnel"
)

type Media struct {
	services   service.Group
	negotiator *negotiator.Server
	log        *logger.Logger
}

func New(conf config.MediaConfig, log *logger.Logger) (*Media, error) {
	factory, err := webrtc.NewApiFactory(conf.Webrtc, log, nil)
	if err != nil {
		return nil, err
	}
	env := negotiator.NewEnv("", "")
	neg := negotiator.NewServer(factory, conf.Webrtc, env, log)
	handler := neg.Routes(httpx.NewServeMux(""))

	client, err := tunnel.NewClient(conf.Media.Tunnel.Address, handler, conf.Media.Tunnel.Retry, log)
	if err != nil {
		return nil, err
	}
	client.OnEnv(env.Update)

	m := &Media{negotiator: neg, log: log}
	m.services.Add(&tunnelService{client: client, log: log})
	if conf.Media.Direct {
		srv, err := httpx.NewServer(
			conf.Media.Server.GetAddr(),
			func(*httpx.Server) http.Handler { return httpx.Chain(handler, httpx.Cors) },
			httpx.WithServerConfig(conf.Media.Server),
			httpx.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}
		m.services.Add(srv)
	}
	if conf.Media.Monitoring.IsEnabled() {
		if mon := monitoring.New(conf.Media.Monitoring, log); mon != nil {
			m.services.Add(mon)
		}
	}
	return m, nil
}

func (m *Media) Start() { m.services.Start() }

func (m *Media) Shutdown(ctx context.Context) error {
	err := m.services.Shutdown(ctx)
	m.negotiator.Close()
	return err
}

// tunnelService keeps the tunnel client connected while running.
type tunnelService struct {
	client *tunnel.Client
	cancel context.CancelFunc
	done   chan struct{}
	log    *logger.Logger
}

func (t *tunnelService) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		if err := t.client.Run(ctx); err != nil && ctx.Err() == nil {
			t.log.Error().Err(err).Msg("tunnel")
		}
	}()
}

func (t *tunnelService) Shutdown(ctx context.Context) error {
	if t.cancel == nil {
		return nil
	}
	t.cancel()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *tunnelService) String() string { return "tunnel" }
