// Package edge is the public facing process: the directory, the tunnel
// to the media backend and the relay.
package edge

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/directory"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/monitoring"
	"github.com/livecast/livecast/pkg/network/httpx"
	"github.com/livecast/livecast/pkg/os"
	"github.com/livecast/livecast/pkg/relay"
	"github.com/livecast/livecast/pkg/service"
	"github.com/livecast/livecast/pkg/store"
	"github.com/livecast/livecast/pkg/tunnel"
)

const TunnelPath = "/tunnel"

// forwarded to the media backend as is
var mediaPaths = []string{"/api/whip", "/api/whep", "/api/webrtc/live/", "/api/webrtc/play/", "/resource/"}

type Edge struct {
	conf      config.EdgeConfig
	services  service.Group
	directory *directory.Directory
	auth      *directory.Auth
	tunnel    *tunnel.Server
	store     store.Storage
	lock      *os.Flock

	mu       sync.RWMutex
	publicIp string

	log *logger.Logger
}

func New(conf config.EdgeConfig, log *logger.Logger) (*Edge, error) {
	lock, err := os.NewFileLock(conf.Edge.DataDir)
	if err != nil {
		return nil, err
	}
	if err = lock.TryLock(); err != nil {
		return nil, fmt.Errorf("data dir %q: %w", conf.Edge.DataDir, err)
	}

	if conf.Storage.Provider == "sqlite" && conf.Edge.DataDir != "" && !filepath.IsAbs(conf.Storage.Path) {
		conf.Storage.Path = filepath.Join(conf.Edge.DataDir, conf.Storage.Path)
	}
	st, err := store.New(conf.Storage, log)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	auth, err := directory.NewAuth(conf.Edge.BearerToken, conf.Edge.Admin.Username, conf.Edge.Admin.Password)
	if err != nil {
		_ = lock.Unlock()
		_ = st.Close()
		return nil, err
	}

	e := &Edge{
		conf:      conf,
		directory: directory.New(st, conf.Edge, log),
		auth:      auth,
		store:     st,
		lock:      lock,
		publicIp:  conf.Edge.PublicIp,
		log:       log,
	}
	e.tunnel = tunnel.NewServer(conf.Edge.Tunnel.Whitelist, conf.Edge.Tunnel.TrustedProxies, e.env, log)
	e.tunnel.Timeout = conf.Edge.Tunnel.Timeout

	srv, err := httpx.NewServer(
		conf.Edge.GetAddr(),
		func(*httpx.Server) http.Handler { return e.Handler() },
		httpx.WithServerConfig(conf.Edge.Server),
		httpx.WithLogger(log),
	)
	if err != nil {
		_ = lock.Unlock()
		_ = st.Close()
		return nil, err
	}
	e.services.Add(srv)
	if conf.Edge.Monitoring.IsEnabled() {
		if m := monitoring.New(conf.Edge.Monitoring, log); m != nil {
			e.services.Add(m)
		}
	}
	return e, nil
}

// Handler routes the edge requests.
func (e *Edge) Handler() http.Handler {
	mux := httpx.NewServeMux("")
	e.directory.Routes(mux)
	for _, p := range mediaPaths {
		mux.HandleFunc(p, e.tunnel.Forward)
	}
	mux.HandleFunc(TunnelPath, e.tunnel.Accept)

	var h http.Handler
	// relayed calls loop back into the edge itself
	mux.Handle(relay.Path, relay.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	}), e.conf.Edge.Relay.ReadyTimeout, e.log))

	h = httpx.Chain(mux, httpx.Cors, e.auth.Middleware)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// any other websocket is the backend
		if isUpgrade(r) && r.URL.Path != relay.Path {
			e.tunnel.Accept(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// env is pushed to each connected backend.
func (e *Edge) env() map[string]string {
	items := map[string]string{}
	if ip := e.PublicIp(); ip != "" {
		items[api.EnvPublicIp] = ip
	}
	if e.conf.Edge.BearerToken != "" {
		items[api.EnvBearerToken] = e.conf.Edge.BearerToken
	}
	return items
}

func (e *Edge) PublicIp() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.publicIp
}

// Start runs the startup tasks and the services.
func (e *Edge) Start(ctx context.Context) {
	if e.PublicIp() == "" {
		ip, err := directory.DetectPublicIp(ctx, directory.MetadataProbes, directory.PublicIpTimeout, e.log)
		if err != nil {
			e.log.Info().Msg("No public IP found")
		} else {
			e.log.Info().Str("ip", ip).Msg("Public IP")
			e.mu.Lock()
			e.publicIp = ip
			e.mu.Unlock()
		}
	}
	if admin := e.conf.Edge.Admin; admin.Password != "" {
		name := admin.Username
		if name == "" {
			name = "admin"
		}
		created, err := e.directory.EnsureChannel(ctx, name)
		if err != nil {
			e.log.Error().Err(err).Msg("admin channel")
		} else if created {
			e.log.Info().Str("id", name).Msg("admin channel created")
		}
	}
	e.services.Start()
}

func (e *Edge) Shutdown(ctx context.Context) error {
	var errs *multierror.Error
	if err := e.services.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	e.tunnel.Close()
	if err := e.store.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := e.lock.Unlock(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
