package webrtc

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/pion/sdp/v3"
)

var ErrBadOffer = errors.New("bad offer")

var mdnsHost = regexp.MustCompile(`[A-Za-z0-9-]+\.local`)

// RewriteHosts replaces mDNS host candidates (xxx.local) with the public address.
// An empty ip leaves the text as is.
func RewriteHosts(text, ip string) string {
	if ip == "" {
		return text
	}
	return mdnsHost.ReplaceAllLiteralString(text, ip)
}

// ValidateOffer checks that the text is SDP with at least one media section.
func ValidateOffer(text string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(text)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOffer, err)
	}
	if len(desc.MediaDescriptions) == 0 {
		return fmt.Errorf("%w: no media", ErrBadOffer)
	}
	return nil
}

// LimitVideoBitrate sets b=AS (kbps) on every video section of the SDP text.
// An existing AS line is replaced, the other bandwidth lines are kept.
func LimitVideoBitrate(text string, bps uint64) (string, error) {
	if bps == 0 {
		return text, nil
	}
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(text)); err != nil {
		return "", err
	}
	kbps := bps / 1000
	changed := false
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media != "video" {
			continue
		}
		bw := m.Bandwidth[:0]
		for _, b := range m.Bandwidth {
			if b.Type != "AS" {
				bw = append(bw, b)
			}
		}
		m.Bandwidth = append(bw, sdp.Bandwidth{Type: "AS", Bandwidth: kbps})
		changed = true
	}
	if !changed {
		return text, nil
	}
	out, err := desc.Marshal()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
