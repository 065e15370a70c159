package directory

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/livecast/livecast/pkg/logger"
)

const PublicIpTimeout = time.Second

// Probe is a metadata endpoint that may know the public address.
type Probe struct {
	Url string
	// Strict probes count only 2xx replies.
	Strict bool
}

var MetadataProbes = []Probe{
	{Url: "http://169.254.169.254/latest/meta-data/local-ipv4"},
	{Url: "http://100.100.100.200/latest/meta-data/eipv4", Strict: true},
}

var ErrNoPublicIp = errors.New("no public ip")

// DetectPublicIp asks all probes at once and takes the first answer.
func DetectPublicIp(ctx context.Context, probes []Probe, timeout time.Duration, log *logger.Logger) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan string, len(probes))
	for _, p := range probes {
		go func(p Probe) {
			ip, err := p.ask(ctx)
			if err != nil {
				log.Debug().Err(err).Str("url", p.Url).Msg("public ip probe")
				ip = ""
			}
			found <- ip
		}(p)
	}
	for range probes {
		select {
		case ip := <-found:
			if ip != "" {
				return ip, nil
			}
		case <-ctx.Done():
			return "", ErrNoPublicIp
		}
	}
	return "", ErrNoPublicIp
}

func (p Probe) ask(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if p.Strict && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return "", errors.New(resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(data))
	if net.ParseIP(ip) == nil {
		return "", errors.New("not an ip")
	}
	return ip, nil
}
