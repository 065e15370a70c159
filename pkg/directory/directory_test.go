package directory

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/network/httpx"
	"github.com/livecast/livecast/pkg/store"
)

const token = "t0ken"

func newDirectory(t *testing.T, conf config.Edge) (*Directory, *httptest.Server) {
	t.Helper()
	conf.BearerToken = token
	d := New(store.NewMemory(), conf, logger.Default())
	d.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	auth, err := NewAuth(token, "admin", "pass")
	if err != nil {
		t.Fatal(err)
	}
	s := httptest.NewServer(httpx.Chain(d.Routes(httpx.NewServeMux("")), httpx.Cors, auth.Middleware))
	t.Cleanup(s.Close)
	return d, s
}

type reply struct {
	code int
	body string
}

func call(t *testing.T, s *httptest.Server, method, path, body string) reply {
	t.Helper()
	req, _ := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Origin", "https://live.test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	return reply{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
}

func message(t *testing.T, body string) string {
	t.Helper()
	text, ok := api.FailureText([]byte(body))
	if !ok {
		t.Fatalf("no error envelope in %v", body)
	}
	return text
}

func TestChannels(t *testing.T) {
	_, s := newDirectory(t, config.Edge{})

	r := call(t, s, http.MethodPost, "/api/channels", `{"id":"ch1","title":"One","thumbnail":"1.png"}`)
	if r.code != http.StatusOK || r.body != `{"id":"ch1","live":false,"title":"One","thumbnail":"1.png"}` {
		t.Fatalf("create = %v %v", r.code, r.body)
	}
	r = call(t, s, http.MethodPost, "/api/channels", `{"id":"ch1"}`)
	if r.code != http.StatusConflict {
		t.Errorf("second create = %v", r.code)
	}
	r = call(t, s, http.MethodPut, "/api/channels", `{"id":"ch2","live_input":"x","title":"Two","thumbnail":""}`)
	if r.code != http.StatusOK {
		t.Errorf("put = %v %v", r.code, r.body)
	}

	r = call(t, s, http.MethodGet, "/api/channels", "")
	var list api.Channels
	if err := json.Unmarshal([]byte(r.body), &list); err != nil || len(list.Channels) != 2 {
		t.Fatalf("list = %v %v", r.body, err)
	}
	r = call(t, s, http.MethodGet, "/api/channels?live=1", "")
	if err := json.Unmarshal([]byte(r.body), &list); err != nil || len(list.Channels) != 1 || list.Channels[0].Id != "ch2" {
		t.Errorf("live list = %v", r.body)
	}

	r = call(t, s, http.MethodGet, "/api/channels/nope", "")
	if r.code != http.StatusNotFound || message(t, r.body) != "Channel not found" {
		t.Errorf("get absent = %v %v", r.code, r.body)
	}

	tests := []struct {
		name string
		path string
		body string
		code int
		text string
	}{
		{name: "bad key", path: "/api/channels/ch1", body: `{"id":"x"}`, code: http.StatusBadRequest, text: "Invalid key"},
		{name: "bad value", path: "/api/channels/ch1", body: `{"title":5}`, code: http.StatusBadRequest, text: "Invalid value"},
		{name: "absent", path: "/api/channels/nope", body: `{"title":"x"}`, code: http.StatusNotFound, text: "Channel not found"},
		{name: "ok", path: "/api/channels/ch1", body: `{"title":"New","live_input":null}`, code: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := call(t, s, http.MethodPatch, tt.path, tt.body)
			if r.code != tt.code {
				t.Errorf("patch = %v %v", r.code, r.body)
			}
			if tt.text != "" && message(t, r.body) != tt.text {
				t.Errorf("message = %v", r.body)
			}
		})
	}

	r = call(t, s, http.MethodGet, "/api/channels/ch1", "")
	var c api.Channel
	if err := json.Unmarshal([]byte(r.body), &c); err != nil || c.Title != "New" || c.Thumbnail != "1.png" {
		t.Errorf("patched = %v", r.body)
	}
}

func TestLiveInputs(t *testing.T) {
	_, s := newDirectory(t, config.Edge{})

	r := call(t, s, http.MethodPost, "/api/live_inputs", `{"meta":{"name":"cam"}}`)
	if r.code != http.StatusOK {
		t.Fatalf("create = %v %v", r.code, r.body)
	}
	var created api.Result[api.LiveInput]
	if err := json.Unmarshal([]byte(r.body), &created); err != nil {
		t.Fatal(err)
	}
	in := created.Result
	if in.Created != "2024-05-01T10:00:00.000Z" || string(in.Meta) != `{"name":"cam"}` {
		t.Errorf("input = %v", r.body)
	}
	want := "https://live.test/api/webrtc/live/" + api.LiveSecret(in.Uid, token) + "/" + in.Uid
	if in.WebRTC == nil || in.WebRTC.Url != want {
		t.Errorf("publish url = %v, want %v", in.WebRTC, want)
	}
	if in.WebRTCPlayback == nil || in.WebRTCPlayback.Url != "https://live.test/api/webrtc/play/"+in.Uid {
		t.Errorf("playback url = %v", in.WebRTCPlayback)
	}

	r = call(t, s, http.MethodGet, "/api/live_inputs/"+in.Uid, "")
	if r.code != http.StatusOK || !strings.Contains(r.body, in.Uid) {
		t.Errorf("get = %v %v", r.code, r.body)
	}
	r = call(t, s, http.MethodGet, "/api/live_inputs", "")
	if !strings.HasPrefix(r.body, `{"success":true`) || !strings.Contains(r.body, in.Uid) {
		t.Errorf("list = %v", r.body)
	}

	if r = call(t, s, http.MethodDelete, "/api/live_inputs/"+in.Uid, ""); r.code != http.StatusNoContent {
		t.Errorf("delete = %v", r.code)
	}
	r = call(t, s, http.MethodDelete, "/api/live_inputs/"+in.Uid, "")
	if r.code != http.StatusNotFound || message(t, r.body) != "Live input "+in.Uid+" not found" {
		t.Errorf("second delete = %v %v", r.code, r.body)
	}
}

func TestChannelLiveInput(t *testing.T) {
	_, s := newDirectory(t, config.Edge{})
	call(t, s, http.MethodPost, "/api/channels", `{"id":"ch1"}`)

	if r := call(t, s, http.MethodDelete, "/api/channels/ch1/live_input", ""); r.code != http.StatusNotFound {
		t.Errorf("unlink of none = %v", r.code)
	}
	r := call(t, s, http.MethodPost, "/api/channels/ch1/live_input", "")
	var linked api.Result[api.ChannelLiveInput]
	if err := json.Unmarshal([]byte(r.body), &linked); err != nil || linked.Result.LiveInput == nil {
		t.Fatalf("link = %v %v", r.code, r.body)
	}
	uid := *linked.Result.LiveInput
	if r = call(t, s, http.MethodGet, "/api/live_inputs/"+uid, ""); r.code != http.StatusOK {
		t.Errorf("linked input is absent, %v", r.code)
	}
	r = call(t, s, http.MethodPost, "/api/channels/ch1/live_input", "")
	if r.code != http.StatusConflict || message(t, r.body) != "Live input already exists" {
		t.Errorf("second link = %v %v", r.code, r.body)
	}

	if r = call(t, s, http.MethodDelete, "/api/channels/ch1/live_input", ""); r.code != http.StatusOK {
		t.Errorf("unlink = %v %v", r.code, r.body)
	}
	if r = call(t, s, http.MethodGet, "/api/live_inputs/"+uid, ""); r.code != http.StatusNotFound {
		t.Errorf("unlinked input is still there")
	}
}

func TestUnknownPath(t *testing.T) {
	_, s := newDirectory(t, config.Edge{})
	r := call(t, s, http.MethodGet, "/api/nothing", "")
	if r.code != http.StatusNotFound || message(t, r.body) != "API endpoint not found" {
		t.Errorf("got %v %v", r.code, r.body)
	}
}

func TestLiveInputsProxy(t *testing.T) {
	calls := make(chan *http.Request, 4)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- r
		w.Header().Set("X-Remote", "1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"success":true,"result":{"uid":"remote-uid"}}`)
	}))
	defer remote.Close()

	_, s := newDirectory(t, config.Edge{LiveInputsUrl: remote.URL + "/inputs"})
	r := call(t, s, http.MethodGet, "/api/live_inputs/abc", "")
	if r.code != http.StatusAccepted || !strings.Contains(r.body, "remote-uid") {
		t.Errorf("proxied = %v %v", r.code, r.body)
	}
	got := <-calls
	if got.URL.Path != "/inputs/abc" || got.Header.Get("Authorization") != "Bearer "+token {
		t.Errorf("remote request = %+v", got)
	}

	call(t, s, http.MethodPost, "/api/channels", `{"id":"ch1"}`)
	r = call(t, s, http.MethodPost, "/api/channels/ch1/live_input", "")
	if r.code != http.StatusOK || !strings.Contains(r.body, `"live_input":"remote-uid"`) {
		t.Errorf("remote link = %v %v", r.code, r.body)
	}
}

func TestEnsureChannel(t *testing.T) {
	t.Parallel()
	d := New(store.NewMemory(), config.Edge{}, logger.Default())
	ctx := context.Background()
	for i, want := range []bool{true, false} {
		created, err := d.EnsureChannel(ctx, "admin")
		if err != nil || created != want {
			t.Errorf("call %v: created %v, %v", i, created, err)
		}
	}
	if _, err := d.EnsureChannel(ctx, ""); err == nil {
		t.Errorf("empty id is accepted")
	}
}
