package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/network/httpx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Monitoring struct {
	conf   config.Monitoring
	server *httpx.Server
	log    *logger.Logger
}

// New creates new monitoring service.
func New(conf config.Monitoring, log *logger.Logger) *Monitoring {
	log = log.Extend(log.With().Str("mod", "monitoring"))
	serv, err := httpx.NewServer(
		fmt.Sprintf(":%d", conf.Port),
		func(serv *httpx.Server) http.Handler {
			h := http.NewServeMux()

			if conf.ProfilingEnabled {
				prefix := fmt.Sprintf("%s/debug/pprof", conf.URLPrefix)
				log.Info().Msgf("Profiling is enabled at %v", serv.Addr+prefix)
				h.HandleFunc(prefix+"/", pprof.Index)
				h.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
				h.HandleFunc(prefix+"/profile", pprof.Profile)
				h.HandleFunc(prefix+"/symbol", pprof.Symbol)
				h.HandleFunc(prefix+"/trace", pprof.Trace)
				// named profiles under a custom prefix must be listed explicitly
				h.Handle(prefix+"/allocs", pprof.Handler("allocs"))
				h.Handle(prefix+"/block", pprof.Handler("block"))
				h.Handle(prefix+"/goroutine", pprof.Handler("goroutine"))
				h.Handle(prefix+"/heap", pprof.Handler("heap"))
				h.Handle(prefix+"/mutex", pprof.Handler("mutex"))
				h.Handle(prefix+"/threadcreate", pprof.Handler("threadcreate"))
			}

			if conf.MetricEnabled {
				metricPath := fmt.Sprintf("%s/metrics", conf.URLPrefix)
				log.Info().Msgf("Prometheus metric is enabled at %v", serv.Addr+metricPath)
				h.Handle(metricPath, promhttp.Handler())
			}

			return h
		},
		httpx.WithPortRoll(true),
		httpx.WithLogger(log),
	)
	if err != nil {
		log.Error().Err(err).Msg("couldn't start monitoring server")
		return nil
	}
	return &Monitoring{conf: conf, server: serv, log: log}
}

func (m *Monitoring) Run() {
	m.log.Info().Msgf("Starting monitoring server at %v", m.server.Addr)
	m.server.Run()
}

func (m *Monitoring) Shutdown(ctx context.Context) error {
	m.log.Info().Msg("Shutting down monitoring server")
	return m.server.Shutdown(ctx)
}

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
