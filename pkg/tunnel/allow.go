package tunnel

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// AllowList checks addresses against a list of IPs and CIDRs.
// Loopback addresses are always allowed.
type AllowList struct {
	prefixes []netip.Prefix
}

func NewAllowList(entries []string) *AllowList {
	a := &AllowList{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			if p, err := netip.ParsePrefix(e); err == nil {
				a.prefixes = append(a.prefixes, p.Masked())
			}
			continue
		}
		if ip, err := netip.ParseAddr(e); err == nil {
			ip = ip.Unmap()
			a.prefixes = append(a.prefixes, netip.PrefixFrom(ip, ip.BitLen()))
		}
	}
	return a
}

func (a *AllowList) Allowed(address string) bool {
	ip, err := netip.ParseAddr(address)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	if ip.IsLoopback() {
		return true
	}
	for _, p := range a.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the address of the caller.
// Proxy headers are used only when the socket peer is a trusted proxy,
// loopback included.
func ClientIP(r *http.Request, proxies *AllowList) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if proxies == nil || !proxies.Allowed(peer) {
		return peer
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return peer
}
