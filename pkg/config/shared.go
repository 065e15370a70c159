package config

import (
	"time"

	flag "github.com/spf13/pflag"
)

type Monitoring struct {
	Port             int
	URLPrefix        string
	MetricEnabled    bool `json:"metric_enabled"`
	ProfilingEnabled bool `json:"profiling_enabled"`
}

func (c *Monitoring) IsEnabled() bool { return c.MetricEnabled || c.ProfilingEnabled }

type Server struct {
	Address  string `default:":11733"`
	Https    bool
	PortRoll bool
	Tls      struct {
		Address   string `default:":443"`
		Domain    string
		HttpsKey  string
		HttpsCert string
	}
}

func (s *Server) WithFlags(prefix string) {
	flag.StringVar(&s.Address, prefix+"address", s.Address, "HTTP server address (host:port)")
	flag.StringVar(&s.Tls.Address, prefix+"httpsAddress", s.Tls.Address, "HTTPS server address (host:port)")
	flag.StringVar(&s.Tls.HttpsKey, prefix+"httpsKey", s.Tls.HttpsKey, "HTTPS key")
	flag.StringVar(&s.Tls.HttpsCert, prefix+"httpsCert", s.Tls.HttpsCert, "HTTPS chain")
}

func (s *Server) GetAddr() string {
	if s.Https {
		return s.Tls.Address
	}
	return s.Address
}

// Storage selects the key-value backend of the directory.
//
//	memory - in-process map, lost on restart;
//	sqlite - a local database file at Path;
//	s3     - an S3-compatible bucket;
//	gcs    - a Google Cloud Storage bucket.
type Storage struct {
	Provider string `default:"sqlite"`
	Path     string `default:"livecast.db"`
	Bucket   string
	S3       struct {
		Endpoint        string
		AccessKeyId     string
		SecretAccessKey string
		Insecure        bool
	}
	Gcs struct {
		CredentialsFile string
	}
	Timeout time.Duration `default:"5s"`
}
