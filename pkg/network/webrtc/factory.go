package webrtc

import (
	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/network/socket"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

type ApiFactory struct {
	api  *webrtc.API
	conf webrtc.Configuration
}

type ModApiFun func(m *webrtc.MediaEngine, i *interceptor.Registry, s *webrtc.SettingEngine)

func NewApiFactory(conf config.Webrtc, log *logger.Logger, mod ModApiFun) (api *ApiFactory, err error) {
	m := &webrtc.MediaEngine{}
	if err = m.RegisterDefaultCodecs(); err != nil {
		return
	}
	i := &interceptor.Registry{}
	if !conf.DisableDefaultInterceptors {
		if err = webrtc.RegisterDefaultInterceptors(m, i); err != nil {
			return
		}
	}
	customLogger := logger.NewPionLogger(log, conf.LogLevel)
	s := webrtc.SettingEngine{LoggerFactory: customLogger}
	if conf.HasPortRange() {
		if err = s.SetEphemeralUDPPortRange(conf.IcePorts.Min, conf.IcePorts.Max); err != nil {
			return
		}
	}
	if conf.HasSinglePort() {
		udp, err := socket.NewUDPPortRoll(conf.SinglePort)
		if err != nil {
			return nil, err
		}
		s.SetICEUDPMux(webrtc.NewICEUDPMux(customLogger.NewLogger("udpmux"), udp))
		log.Info().Msgf("The single port mode is active for %s", udp.LocalAddr())
	}
	if conf.HasIceIpMap() {
		s.SetNAT1To1IPs([]string{conf.IceIpMap}, webrtc.ICECandidateTypeHost)
		log.Info().Msgf("The NAT mapping is active for %v", conf.IceIpMap)
	}

	if mod != nil {
		mod(m, i, &s)
	}

	c := webrtc.Configuration{ICEServers: []webrtc.ICEServer{}}
	for _, server := range conf.IceServers {
		c.ICEServers = append(c.ICEServers, webrtc.ICEServer{
			URLs:       []string{server.Urls},
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return &ApiFactory{
		api:  webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		conf: c,
	}, nil
}

func (a *ApiFactory) NewPeer() (*webrtc.PeerConnection, error) {
	return a.api.NewPeerConnection(a.conf)
}
