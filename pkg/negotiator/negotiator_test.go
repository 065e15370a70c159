package negotiator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/network/httpx"
	lwebrtc "github.com/livecast/livecast/pkg/network/webrtc"
	"github.com/pion/webrtc/v4"
)

const token = "secret-token"

type testServer struct {
	*Server
	http    *httptest.Server
	factory *lwebrtc.ApiFactory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conf := config.Webrtc{LogLevel: int(logger.WarnLevel), GatherWait: 100 * time.Millisecond, MaxBitrate: 5_000_000}
	factory, err := lwebrtc.NewApiFactory(conf, logger.Default(), nil)
	if err != nil {
		t.Fatalf("no api factory, %v", err)
	}
	s := NewServer(factory, conf, NewEnv("", token), logger.Default())
	h := httptest.NewServer(s.Routes(httpx.NewServeMux("")))
	t.Cleanup(func() {
		h.Close()
		s.Close()
	})
	return &testServer{Server: s, http: h, factory: factory}
}

func (ts *testServer) publisher(t *testing.T) *webrtc.PeerConnection {
	t.Helper()
	pc, err := ts.factory.NewPeer()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "live")
	if err != nil {
		t.Fatal(err)
	}
	if _, err = pc.AddTransceiverFromTrack(video, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly}); err != nil {
		t.Fatal(err)
	}
	if _, err = pc.CreateDataChannel("chat", nil); err != nil {
		t.Fatal(err)
	}
	return pc
}

func (ts *testServer) viewer(t *testing.T) *webrtc.PeerConnection {
	t.Helper()
	pc, err := ts.factory.NewPeer()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err = pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err = pc.CreateDataChannel("chat", nil); err != nil {
		t.Fatal(err)
	}
	return pc
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, ts.http.URL+path, strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	return resp
}

func statusOf(err error) int {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// Publish, play, delete the publisher, then play fails.
func TestPublishPlayDelete(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	// nobody is live yet
	_, err := Negotiate(ctx, ts.viewer(t), ts.http.URL+"/api/whep")
	if statusOf(err) != http.StatusFailedDependency {
		t.Fatalf("expected 424, got %v", err)
	}
	if !strings.Contains(err.Error(), "Live is not started yet.") {
		t.Errorf("wrong message %v", err)
	}

	resource, err := Negotiate(ctx, ts.publisher(t), ts.http.URL+"/api/whip", WithToken(token))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.HasPrefix(resource, ts.http.URL+ResourcePath) {
		t.Errorf("wrong resource url %v", resource)
	}
	if !ts.Channel().IsLive() {
		t.Fatalf("channel is not live")
	}

	// the second publisher
	_, err = Negotiate(ctx, ts.publisher(t), ts.http.URL+"/api/whip")
	if statusOf(err) != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
	if ts.Registry().Len() != 1 {
		t.Errorf("rejected publisher has a session")
	}

	viewer, err := Negotiate(ctx, ts.viewer(t), ts.http.URL+"/api/whep")
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if ts.Channel().Viewers() != 1 {
		t.Errorf("viewers %v", ts.Channel().Viewers())
	}

	if err = Delete(ctx, viewer); err != nil {
		t.Errorf("viewer delete: %v", err)
	}
	if ts.Channel().Viewers() != 0 {
		t.Errorf("viewers after delete %v", ts.Channel().Viewers())
	}

	if err = Delete(ctx, resource); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ts.Channel().IsLive() {
		t.Errorf("channel is live after delete")
	}
	if err = Delete(ctx, resource); statusOf(err) != http.StatusNotFound {
		t.Errorf("expected 404 on the second delete, got %v", err)
	}

	_, err = Negotiate(ctx, ts.viewer(t), ts.http.URL+"/api/webrtc/play/some-uid")
	if statusOf(err) != http.StatusFailedDependency {
		t.Errorf("expected 424 after delete, got %v", err)
	}
}

func TestAnswerIsClamped(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	if _, err := Negotiate(ctx, ts.publisher(t), ts.http.URL+"/api/whip"); err != nil {
		t.Fatal(err)
	}
	pc := ts.viewer(t)
	if _, err := Negotiate(ctx, pc, ts.http.URL+"/api/whep"); err != nil {
		t.Fatal(err)
	}
	answer := pc.RemoteDescription()
	if answer == nil || !strings.Contains(answer.SDP, "b=AS:5000") {
		t.Errorf("answer is not clamped")
	}
}

func TestLiveSecret(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := Negotiate(ctx, ts.publisher(t), ts.http.URL+"/api/webrtc/live/bad/uid1")
	if statusOf(err) != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
	path := "/api/webrtc/live/" + api.LiveSecret("uid1", token) + "/uid1"
	if _, err = Negotiate(ctx, ts.publisher(t), ts.http.URL+path); err != nil {
		t.Errorf("publish with the secret: %v", err)
	}
}

func TestLiveSecretWithoutToken(t *testing.T) {
	ts := newTestServer(t)
	ts.env.Update(map[string]string{api.EnvBearerToken: ""})
	ctx := context.Background()

	path := "/api/webrtc/live/" + api.LiveSecret("uid1", "") + "/uid1"
	resource, err := Negotiate(ctx, ts.publisher(t), ts.http.URL+path)
	if err != nil {
		t.Fatalf("publish with an open link: %v", err)
	}
	if !ts.Channel().IsLive() {
		t.Errorf("channel is not live")
	}
	if err = Delete(ctx, resource); err != nil {
		t.Errorf("delete: %v", err)
	}
}

func TestPublicIpRewrite(t *testing.T) {
	ts := newTestServer(t)
	ts.env.Update(map[string]string{api.EnvPublicIp: "203.0.113.7"})
	ctx := context.Background()

	pc := ts.publisher(t)
	if _, err := Negotiate(ctx, pc, ts.http.URL+"/api/whip"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(pc.RemoteDescription().SDP, ".local") {
		t.Errorf("mDNS host is in the answer")
	}
}

func TestMethodsAndBadInput(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		method string
		path   string
		body   string
		code   int
		allow  string
	}{
		{method: http.MethodGet, path: "/api/whip", code: http.StatusMethodNotAllowed, allow: "POST"},
		{method: http.MethodPut, path: "/api/whep", code: http.StatusMethodNotAllowed, allow: "POST"},
		{method: http.MethodGet, path: "/resource/x", code: http.StatusMethodNotAllowed, allow: "DELETE"},
		{method: http.MethodDelete, path: "/resource/x", code: http.StatusNotFound},
		{method: http.MethodPost, path: "/api/whip", body: "not sdp", code: http.StatusBadRequest},
		{method: http.MethodPost, path: "/api/whip", code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			resp := ts.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.code {
				t.Errorf("got %v, want %v", resp.StatusCode, tt.code)
			}
			if tt.allow != "" && resp.Header.Get("Allow") != tt.allow {
				t.Errorf("Allow %q, want %q", resp.Header.Get("Allow"), tt.allow)
			}
		})
	}
	if ts.Channel().IsLive() {
		t.Errorf("bad offers made the channel live")
	}
}

func TestEnvUpdate(t *testing.T) {
	t.Parallel()
	e := NewEnv("1.1.1.1", "a")
	e.Update(map[string]string{api.EnvBearerToken: "b"})
	if e.PublicIp() != "1.1.1.1" || e.Token() != "b" {
		t.Errorf("got %v %v", e.PublicIp(), e.Token())
	}
}
