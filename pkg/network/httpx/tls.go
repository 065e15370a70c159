package httpx

import "golang.org/x/crypto/acme/autocert"

type TLS struct {
	CertManager *autocert.Manager
}

// NewTLSConfig makes a Let's Encrypt certificate manager for the host.
// Certificates are cached in the dir.
func NewTLSConfig(host string, dir string) *TLS {
	if dir == "" {
		dir = "cert-cache"
	}
	tls := TLS{
		CertManager: &autocert.Manager{
			Prompt: autocert.AcceptTOS,
			Cache:  autocert.DirCache(dir),
		},
	}
	if host != "" {
		tls.CertManager.HostPolicy = autocert.HostWhitelist(host)
	}
	return &tls
}
