package channel

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/livecast/livecast/pkg/logger"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

type inbox struct {
	mu  sync.Mutex
	got []string
}

func (i *inbox) SendText(s string) error {
	i.mu.Lock()
	i.got = append(i.got, s)
	i.mu.Unlock()
	return nil
}

func (i *inbox) all() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.got...)
}

type feedback struct {
	packets []rtcp.Packet
}

func (f *feedback) WriteRTCP(p []rtcp.Packet) error { f.packets = append(f.packets, p...); return nil }

func newChannel() *Channel { return New(logger.Default()) }

func TestSinglePublisher(t *testing.T) {
	t.Parallel()
	c := newChannel()
	if err := c.StartPublishing("a", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.StartPublishing("b", nil); !errors.Is(err, ErrPublisherActive) {
		t.Errorf("expected ErrPublisherActive, got %v", err)
	}
	if c.Topic() != "a" {
		t.Errorf("the first publisher is replaced with %v", c.Topic())
	}

	// a stale stop does nothing
	c.StopPublishing("b")
	if !c.IsLive() {
		t.Fatalf("channel is stopped by a stranger")
	}

	c.StopPublishing("a")
	if c.IsLive() {
		t.Errorf("channel is still live")
	}
	if err := c.StartPublishing("b", nil); err != nil {
		t.Errorf("can't publish after stop, %v", err)
	}
}

func TestConcurrentPublishers(t *testing.T) {
	t.Parallel()
	c := newChannel()
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if c.StartPublishing(string(rune('a'+i)), nil) == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if won != 1 {
		t.Errorf("%v publishers", won)
	}
}

func TestJoinWithoutPublisher(t *testing.T) {
	t.Parallel()
	c := newChannel()
	attached := false
	err := c.JoinAsSubscriber("v", func([]Track) error { attached = true; return nil })
	if !errors.Is(err, ErrNotAvailable) {
		t.Errorf("expected ErrNotAvailable, got %v", err)
	}
	if attached {
		t.Errorf("tracks attached without a publisher")
	}
	c.LeaveAsSubscriber("v")
	if c.Viewers() != 0 {
		t.Errorf("viewers %v", c.Viewers())
	}
}

func TestJoinAttachesTracks(t *testing.T) {
	t.Parallel()
	c := newChannel()
	_ = c.StartPublishing("p", nil)

	video, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "p")
	if err != nil {
		t.Fatal(err)
	}
	if err = c.AddTrack("p", Track{Local: video, SSRC: 1, Kind: webrtc.RTPCodecTypeVideo}); err != nil {
		t.Fatal(err)
	}
	if err = c.AddTrack("x", Track{Local: video}); !errors.Is(err, ErrNotPublisher) {
		t.Errorf("expected ErrNotPublisher, got %v", err)
	}

	var got []Track
	if err = c.JoinAsSubscriber("v", func(tracks []Track) error { got = tracks; return nil }); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Local != video {
		t.Errorf("wrong tracks %v", got)
	}

	boom := errors.New("boom")
	if err = c.JoinAsSubscriber("w", func([]Track) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected attach error, got %v", err)
	}
	if c.Viewers() != 1 {
		t.Errorf("failed join is counted, viewers %v", c.Viewers())
	}

	c.StopPublishing("p")
	if len(c.Tracks()) != 0 {
		t.Errorf("tracks are not cleared")
	}
}

func TestViewerCount(t *testing.T) {
	t.Parallel()
	c := newChannel()
	feed := &inbox{}
	_ = c.StartPublishing("p", nil)
	if err := c.SetFeed("p", feed); err != nil {
		t.Fatal(err)
	}

	_ = c.JoinAsSubscriber("v1", nil)
	_ = c.JoinAsSubscriber("v2", nil)
	_ = c.JoinAsSubscriber("v2", nil)
	c.LeaveAsSubscriber("v1")
	c.LeaveAsSubscriber("v1")
	c.LeaveAsSubscriber("never")

	want := []string{
		`{"type":"views","body":0}`,
		`{"type":"views","body":1}`,
		`{"type":"views","body":2}`,
		`{"type":"views","body":1}`,
	}
	got := feed.all()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("views\n%v\nwant\n%v", got, want)
	}
	if c.Viewers() != 1 {
		t.Errorf("viewers %v", c.Viewers())
	}

	c.StopPublishing("p")
	c.LeaveAsSubscriber("v2")
	if c.Viewers() != 0 {
		t.Errorf("viewers after stop %v", c.Viewers())
	}
}

func TestFeedback(t *testing.T) {
	t.Parallel()
	c := newChannel()
	if err := c.RequestKeyframe(1); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("expected ErrNotAvailable, got %v", err)
	}
	fb := &feedback{}
	_ = c.StartPublishing("p", fb)
	_ = c.RequestKeyframe(7)
	_ = c.LimitBitrate(7, 5_000_000)

	if len(fb.packets) != 2 {
		t.Fatalf("packets %v", fb.packets)
	}
	if pli, ok := fb.packets[0].(*rtcp.PictureLossIndication); !ok || pli.MediaSSRC != 7 {
		t.Errorf("not a PLI %v", fb.packets[0])
	}
	if remb, ok := fb.packets[1].(*rtcp.ReceiverEstimatedMaximumBitrate); !ok || remb.Bitrate != 5_000_000 {
		t.Errorf("not a REMB %v", fb.packets[1])
	}
}
