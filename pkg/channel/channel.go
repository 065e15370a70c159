// Package channel holds the state of the single live broadcast.
package channel

import (
	"errors"
	"sync"

	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/com"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/monitoring"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

var (
	ErrPublisherActive = errors.New("publisher is active")
	ErrNotAvailable    = errors.New("live is not started yet")
	ErrNotPublisher    = errors.New("not the publisher")
)

// Track is a local copy of a publisher track that viewers attach.
type Track struct {
	Local webrtc.TrackLocal
	// SSRC of the source track on the publisher side.
	SSRC uint32
	Kind webrtc.RTPCodecType
}

// RTCPWriter sends feedback to the publisher.
type RTCPWriter interface {
	WriteRTCP([]rtcp.Packet) error
}

type Channel struct {
	mu        sync.Mutex
	slot      com.Slot
	publisher string
	feedback  RTCPWriter
	feed      Sender
	tracks    []Track
	viewers   map[string]struct{}
	meta      api.Meta

	topics *Topics
	log    *logger.Logger
}

func New(log *logger.Logger) *Channel {
	return &Channel{
		viewers: make(map[string]struct{}),
		topics:  NewTopics(log),
		log:     log,
	}
}

// StartPublishing makes the session the publisher.
// Fails with ErrPublisherActive if there is one already.
func (c *Channel) StartPublishing(id string, feedback RTCPWriter) error {
	if !c.slot.TryReserve() {
		return ErrPublisherActive
	}
	c.mu.Lock()
	c.publisher = id
	c.feedback = feedback
	c.mu.Unlock()
	c.log.Info().Str(logger.SessionField, id).Msg("live started")
	return nil
}

// StopPublishing resets the channel if id is the current publisher.
func (c *Channel) StopPublishing(id string) {
	c.mu.Lock()
	if c.publisher == "" || c.publisher != id {
		c.mu.Unlock()
		return
	}
	c.publisher = ""
	c.feedback = nil
	c.feed = nil
	c.tracks = nil
	c.viewers = make(map[string]struct{})
	c.meta = api.Meta{}
	c.mu.Unlock()

	c.topics.Drop(id)
	monitoring.Viewers.Set(0)
	c.slot.UnReserve()
	c.log.Info().Str(logger.SessionField, id).Msg("live stopped")
}

// AddTrack adds a publisher track for the following viewers.
func (c *Channel) AddTrack(publisher string, t Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publisher == "" || c.publisher != publisher {
		return ErrNotPublisher
	}
	c.tracks = append(c.tracks, t)
	return nil
}

func (c *Channel) Tracks() []Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Track(nil), c.tracks...)
}

func (c *Channel) IsLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publisher != ""
}

// Topic is the id of the message topic of the broadcast, empty when not live.
func (c *Channel) Topic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publisher
}

func (c *Channel) Topics() *Topics { return c.topics }

// JoinAsSubscriber registers a viewer.
// The attach callback gets current tracks before the viewer is counted,
// its error cancels the join.
func (c *Channel) JoinAsSubscriber(id string, attach func([]Track) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publisher == "" {
		return ErrNotAvailable
	}
	if _, ok := c.viewers[id]; ok {
		return nil
	}
	if attach != nil {
		if err := attach(append([]Track(nil), c.tracks...)); err != nil {
			return err
		}
	}
	c.viewers[id] = struct{}{}
	c.pushViews()
	return nil
}

// LeaveAsSubscriber removes a viewer if it has joined the current broadcast.
func (c *Channel) LeaveAsSubscriber(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publisher == "" {
		return
	}
	if _, ok := c.viewers[id]; !ok {
		return
	}
	delete(c.viewers, id)
	c.pushViews()
}

func (c *Channel) Viewers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.viewers)
}

// SetFeed sets the publisher's own message channel.
// The publisher gets view counts through it.
func (c *Channel) SetFeed(publisher string, s Sender) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publisher == "" || c.publisher != publisher {
		return ErrNotPublisher
	}
	c.feed = s
	c.pushViews()
	return nil
}

func (c *Channel) SetMeta(from string, meta api.Meta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publisher == "" || c.publisher != from {
		return ErrNotPublisher
	}
	c.meta = meta
	return nil
}

func (c *Channel) Meta() api.Meta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// RequestKeyframe asks the publisher for a new keyframe of the track.
func (c *Channel) RequestKeyframe(ssrc uint32) error {
	c.mu.Lock()
	w := c.feedback
	c.mu.Unlock()
	if w == nil {
		return ErrNotAvailable
	}
	return w.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
}

// LimitBitrate asks the publisher to keep the track under bps.
func (c *Channel) LimitBitrate(ssrc uint32, bps uint64) error {
	c.mu.Lock()
	w := c.feedback
	c.mu.Unlock()
	if w == nil {
		return ErrNotAvailable
	}
	return w.WriteRTCP([]rtcp.Packet{&rtcp.ReceiverEstimatedMaximumBitrate{Bitrate: float32(bps), SSRCs: []uint32{ssrc}}})
}

// pushViews sends the viewer count to the publisher.
// Must be called under the lock so the counts arrive in order.
func (c *Channel) pushViews() {
	n := len(c.viewers)
	monitoring.Viewers.Set(float64(n))
	if c.feed == nil {
		return
	}
	msg, err := api.ViewsEnvelope(n)
	if err != nil {
		return
	}
	if err = c.feed.SendText(string(msg)); err != nil {
		c.log.Warn().Err(err).Msg("views")
	}
}
