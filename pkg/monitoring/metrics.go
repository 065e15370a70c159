package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livecast"

var (
	Sessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Active sessions by role.",
	}, []string{"role"})

	Viewers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "viewers",
		Help:      "Viewers of the live channel.",
	})

	TunnelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tunnel",
		Name:      "requests_total",
		Help:      "Forwarded requests by outcome.",
	}, []string{"outcome"})

	BackendConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tunnel",
		Name:      "backend_connected",
		Help:      "1 when the media backend is connected.",
	})
)

// Tunnel request outcomes.
const (
	OutcomeOk          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeDrained     = "drained"
	OutcomeNoBackend   = "no_backend"
	OutcomeSendFailure = "send_failure"
)
