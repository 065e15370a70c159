package config

import (
	"strings"
	"time"
)

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	IcePorts                   struct {
		Min uint16
		Max uint16
	}
	IceIpMap   string
	SinglePort int
	LogLevel   int `default:"3"`
	// GatherWait bounds the wait for ICE candidate gathering.
	GatherWait time.Duration `default:"200ms"`
	// MaxBitrate caps the video bitrate of each viewer, bps.
	MaxBitrate uint64 `default:"5000000"`
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

func (w *Webrtc) HasPortRange() bool  { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
func (w *Webrtc) HasSinglePort() bool { return w.SinglePort > 0 }
func (w *Webrtc) HasIceIpMap() bool   { return w.IceIpMap != "" }

// IsTurn says whether the server needs credentials.
func (i IceServer) IsTurn() bool {
	return strings.HasPrefix(i.Urls, "turn:") || strings.HasPrefix(i.Urls, "turns:")
}
