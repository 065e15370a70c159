package negotiator

import (
	"errors"
	"io"

	"github.com/livecast/livecast/pkg/channel"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const rtpBufferSize = 1500

// forward copies RTP packets of the publisher track into the local track
// shared by the viewers. Stops when the remote track ends.
func forward(remote *webrtc.TrackRemote, local *webrtc.TrackLocalStaticRTP, log *logger.Logger) {
	buf := make([]byte, rtpBufferSize)
	pkt := &rtp.Packet{}
	for {
		n, _, err := remote.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Msg("track read")
			}
			return
		}
		if err = pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		// extension ids are negotiated per viewer
		pkt.Extension = false
		pkt.Extensions = nil
		if err = local.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Warn().Err(err).Msg("track write")
			return
		}
	}
}

// readRTCP drains the viewer feedback of the sender.
// Keyframe requests are passed to the publisher.
func readRTCP(sender *webrtc.RTPSender, track channel.Track, ch *channel.Channel, log *logger.Logger) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if err := ch.RequestKeyframe(track.SSRC); err != nil {
					log.Debug().Err(err).Msg("keyframe request")
				}
			}
		}
	}
}
