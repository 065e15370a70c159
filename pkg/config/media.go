package config

import (
	"time"

	flag "github.com/spf13/pflag"
)

type MediaConfig struct {
	Media  Media
	Webrtc Webrtc
}

type Media struct {
	Debug      bool
	Monitoring Monitoring
	// Direct enables a listener for the negotiation endpoints
	// next to the tunnel, it runs on Server.
	Direct bool
	Server Server
	Tunnel struct {
		// Address of the edge tunnel endpoint, e.g. ws://127.0.0.1:11733/tunnel.
		Address string        `default:"ws://127.0.0.1:11733/tunnel"`
		Retry   time.Duration `default:"5s"`
	}
}

// allows custom config path
var mediaConfigPath string

func NewMediaConfig() (conf MediaConfig) {
	if err := LoadConfig(&conf, mediaConfigPath); err != nil {
		panic(err)
	}
	conf.fixValues()
	return
}

// ParseFlags updates config values from passed runtime flags.
func (c *MediaConfig) ParseFlags() {
	c.Media.Server.WithFlags("")
	flag.IntVar(&c.Media.Monitoring.Port, "monitoring.port", c.Media.Monitoring.Port, "Monitoring server port")
	flag.StringVarP(&c.Media.Tunnel.Address, "socket", "s", c.Media.Tunnel.Address, "Edge tunnel address to connect")
	flag.StringVar(&mediaConfigPath, "m-conf", mediaConfigPath, "Set custom configuration file path")
	flag.Parse()
}

// fixValues tries to fix some values otherwise hard to set externally.
func (c *MediaConfig) fixValues() {
	if v, ok := lookupEnv("PUBLIC_IP"); ok && !c.Webrtc.HasIceIpMap() {
		c.Webrtc.IceIpMap = v
	}
	if c.Webrtc.GatherWait <= 0 {
		c.Webrtc.GatherWait = 200 * time.Millisecond
	}
}
