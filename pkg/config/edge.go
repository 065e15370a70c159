package config

import (
	"time"

	flag "github.com/spf13/pflag"
)

type EdgeConfig struct {
	Edge    Edge
	Storage Storage
}

type Edge struct {
	Debug      bool
	Monitoring Monitoring
	Server     Server
	// PublicIp is pushed to the media backend for SDP rewriting.
	// It is detected from cloud metadata endpoints when empty.
	PublicIp    string
	BearerToken string
	Admin       struct {
		Username string `default:"admin"`
		Password string
	}
	Tunnel struct {
		// Whitelist holds IPs or CIDRs allowed to connect as the backend.
		// Loopback is always allowed.
		Whitelist      []string
		// TrustedProxies are the peers whose CF-Connecting-IP and
		// X-Forwarded-For headers are honoured. Loopback is always trusted.
		TrustedProxies []string
		Timeout        time.Duration `default:"10s"`
	}
	Relay struct {
		ReadyTimeout time.Duration `default:"10s"`
	}
	// LiveInputsUrl proxies the live input API to an external service when set.
	LiveInputsUrl string
	// DataDir is locked against a second edge on the same data.
	DataDir string
}

// allows custom config path
var edgeConfigPath string

func NewEdgeConfig() (conf EdgeConfig) {
	if err := LoadConfig(&conf, edgeConfigPath); err != nil {
		panic(err)
	}
	conf.overrideFromEnv()
	return
}

// ParseFlags updates config values from passed runtime flags.
// Define own flags with default value set to the current config param.
func (c *EdgeConfig) ParseFlags() {
	c.Edge.Server.WithFlags("")
	flag.IntVar(&c.Edge.Monitoring.Port, "monitoring.port", c.Edge.Monitoring.Port, "Monitoring server port")
	flag.StringVar(&c.Edge.PublicIp, "publicIp", c.Edge.PublicIp, "Public IP used in SDP answers")
	flag.StringSliceVar(&c.Edge.Tunnel.Whitelist, "whitelist", c.Edge.Tunnel.Whitelist, "Allowed backend addresses")
	flag.StringSliceVar(&c.Edge.Tunnel.TrustedProxies, "trustedProxies", c.Edge.Tunnel.TrustedProxies, "Proxies allowed to set client address headers")
	flag.StringVar(&c.Storage.Provider, "storage", c.Storage.Provider, "Storage provider [memory, sqlite, s3, gcs]")
	flag.StringVar(&edgeConfigPath, "e-conf", edgeConfigPath, "Set custom configuration file path")
	flag.Parse()
}

// overrideFromEnv applies the plain env names of the original deployment scripts.
func (c *EdgeConfig) overrideFromEnv() {
	if v, ok := lookupEnv("PUBLIC_IP"); ok {
		c.Edge.PublicIp = v
	}
	if v, ok := lookupEnv("BEARER_TOKEN"); ok {
		c.Edge.BearerToken = v
	}
	if v, ok := lookupEnv("WEBSOCKET_WHITELIST"); ok {
		c.Edge.Tunnel.Whitelist = splitList(v)
	}
	if v, ok := lookupEnv("ADMIN_USERNAME"); ok {
		c.Edge.Admin.Username = v
	}
	if v, ok := lookupEnv("ADMIN_PASSWORD"); ok {
		c.Edge.Admin.Password = v
	}
	if v, ok := lookupEnv("LIVE_INPUTS_URL"); ok {
		c.Edge.LiveInputsUrl = v
	}
}

// GetAddr returns defined in the config server address.
func (e *Edge) GetAddr() string { return e.Server.GetAddr() }
