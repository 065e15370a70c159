package webrtc

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
)

// Overridden in tests.
var gatheringCompletePromise = webrtc.GatheringCompletePromise

var ErrNoLocalDescription = errors.New("no local description")

// Gather waits for ICE gathering of pc to complete, but no longer than wait.
// It must be called right after SetLocalDescription.
// Returns the local description as it is at the moment, with whatever
// candidates were gathered so far.
func Gather(ctx context.Context, pc *webrtc.PeerConnection, wait time.Duration) (*webrtc.SessionDescription, error) {
	done := gatheringCompletePromise(pc)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	desc := pc.LocalDescription()
	if desc == nil || desc.SDP == "" {
		return nil, ErrNoLocalDescription
	}
	return desc, nil
}
