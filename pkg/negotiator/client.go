package negotiator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/logger"
	lwebrtc "github.com/livecast/livecast/pkg/network/webrtc"
	"github.com/livecast/livecast/pkg/relay"
	"github.com/pion/webrtc/v4"
)

const DefaultClientWait = time.Second

// ResponseError is a failed negotiation reply.
type ResponseError struct {
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	if e.Status == http.StatusMethodNotAllowed {
		return fmt.Sprintf("%d: %s (check the endpoint url)", e.Status, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

type (
	Options struct {
		Token  string
		Wait   time.Duration
		Client *http.Client
		// Page is the origin of the caller, an https page calling an
		// insecure endpoint goes through the relay.
		Page *url.URL
		Log  *logger.Logger
	}
	Option func(*Options)
)

func WithToken(token string) Option        { return func(o *Options) { o.Token = token } }
func WithWait(wait time.Duration) Option   { return func(o *Options) { o.Wait = wait } }
func WithClient(c *http.Client) Option     { return func(o *Options) { o.Client = c } }
func WithPage(page *url.URL) Option        { return func(o *Options) { o.Page = page } }
func WithLogger(log *logger.Logger) Option { return func(o *Options) { o.Log = log } }

func newOptions(options ...Option) *Options {
	o := &Options{Wait: DefaultClientWait}
	for _, opt := range options {
		opt(o)
	}
	if o.Log == nil {
		o.Log = logger.Default()
	}
	if o.Client == nil {
		o.Client = &http.Client{Transport: &relay.Transport{Page: o.Page, Log: o.Log}}
	}
	return o
}

// Negotiate sends the local offer of pc to the endpoint and applies the answer.
// Returns the resource url of the session, it is empty when the server
// sends no location.
func Negotiate(ctx context.Context, pc *webrtc.PeerConnection, endpoint string, options ...Option) (string, error) {
	o := newOptions(options...)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err = pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	desc, err := lwebrtc.Gather(ctx, pc, o.Wait)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(desc.SDP))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/sdp")
	if o.Token != "" {
		req.Header.Set("Authorization", "Bearer "+o.Token)
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", responseError(resp.StatusCode, body)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(body)}
	if err = pc.SetRemoteDescription(answer); err != nil {
		return "", err
	}
	o.Log.Debug().Int("status", resp.StatusCode).Msg("negotiated")
	return ResolveLocation(endpoint, resp.Header.Get("Location"))
}

// Delete ends the session of the resource url.
func Delete(ctx context.Context, resource string, options ...Option) error {
	o := newOptions(options...)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resource, nil)
	if err != nil {
		return err
	}
	if o.Token != "" {
		req.Header.Set("Authorization", "Bearer "+o.Token)
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return responseError(resp.StatusCode, body)
	}
	return nil
}

// ResolveLocation makes the location absolute against the endpoint.
func ResolveLocation(endpoint, location string) (string, error) {
	if location == "" {
		return "", nil
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func responseError(status int, body []byte) *ResponseError {
	msg, ok := api.FailureText(body)
	if !ok {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ResponseError{Status: status, Message: msg}
}
