package relay

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/livecast/livecast/pkg/logger"
)

// Path of the relay endpoint on an insecure origin.
const Path = "/api/relay"

// NeedsRelay says whether a page on the page origin can't call the target directly.
// That is the case for an https page calling a plain http target
// which is not on the loopback.
func NeedsRelay(page, target *url.URL) bool {
	if page == nil || target == nil {
		return false
	}
	if page.Scheme != "https" || target.Scheme != "http" {
		return false
	}
	return !isLoopback(target.Hostname())
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Transport sends requests directly or through the relay of the target origin.
type Transport struct {
	// Page is the origin the calls are made from.
	Page *url.URL
	// Base does the direct calls, http.DefaultTransport if nil.
	Base         http.RoundTripper
	ReadyTimeout time.Duration
	Log          *logger.Logger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !NeedsRelay(t.Page, req.URL) {
		base := t.Base
		if base == nil {
			base = http.DefaultTransport
		}
		return base.RoundTrip(req)
	}
	log := t.Log
	if log == nil {
		log = logger.Default()
	}
	address := url.URL{Scheme: "ws", Host: req.URL.Host, Path: Path}
	conn, closeFn, err := Dial(req.Context(), address, log)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	log.Debug().Str("url", req.URL.String()).Msg("relay call")
	return Post(req.Context(), conn, req, t.ReadyTimeout)
}
