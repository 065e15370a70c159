// Package negotiator terminates WHIP and WHEP offer/answer exchanges.
package negotiator

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/channel"
	"github.com/livecast/livecast/pkg/config"
	"github.com/livecast/livecast/pkg/logger"
	"github.com/livecast/livecast/pkg/network/httpx"
	lwebrtc "github.com/livecast/livecast/pkg/network/webrtc"
	"github.com/livecast/livecast/pkg/session"
	"github.com/pion/webrtc/v4"
)

const (
	ResourcePath = "/resource/"
	maxOfferSize = 1 << 20
)

var errBadSecret = errors.New("bad secret")

type Server struct {
	api      *lwebrtc.ApiFactory
	registry *session.Registry
	channel  *channel.Channel
	env      *Env
	conf     config.Webrtc
	log      *logger.Logger
}

func NewServer(api *lwebrtc.ApiFactory, conf config.Webrtc, env *Env, log *logger.Logger) *Server {
	s := &Server{
		api:      api,
		registry: session.NewRegistry(log),
		channel:  channel.New(log),
		env:      env,
		conf:     conf,
		log:      log,
	}
	s.registry.OnDestroy = s.release
	return s
}

func (s *Server) Channel() *channel.Channel    { return s.channel }
func (s *Server) Registry() *session.Registry { return s.registry }

// Routes registers the negotiation endpoints.
func (s *Server) Routes(mux *httpx.Mux) *httpx.Mux {
	mux.HandleFunc("/api/whip", s.Publish)
	mux.HandleFunc("/api/webrtc/live/{secret}/{uid}", s.Publish)
	mux.HandleFunc("/api/whep", s.Play)
	mux.HandleFunc("/api/webrtc/play/{uid}", s.Play)
	mux.HandleFunc(ResourcePath+"{id}", s.Resource)
	return mux
}

// Close destroys all sessions.
func (s *Server) Close() { s.registry.Close() }

// release detaches a destroyed session from the channel.
func (s *Server) release(sess *session.Session) {
	if sess.IsPublisher() {
		s.channel.StopPublishing(sess.Id)
		return
	}
	s.channel.Topics().Unsubscribe(s.channel.Topic(), sess.Id)
	s.channel.LeaveAsSubscriber(sess.Id)
}

// Publish handles a WHIP offer of the publisher.
func (s *Server) Publish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if err := s.checkSecret(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	offer, err := readOffer(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := session.NewId()
	log := s.log.Extend(s.log.With().Str(logger.SessionField, id))

	pc, err := s.api.NewPeer()
	if err != nil {
		log.Error().Err(err).Msg("peer")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err = s.channel.StartPublishing(id, pc); err != nil {
		_ = pc.Close()
		http.Error(w, "Live is already started.", http.StatusConflict)
		return
	}
	sess, err := s.registry.Create(id, session.Publisher, pc)
	if err != nil {
		s.channel.StopPublishing(id)
		_ = pc.Close()
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) { s.onTrack(id, remote, log) })
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		sess.SetDataChannel(dc)
		dc.OnOpen(func() {
			s.channel.Topics().Subscribe(id, id, dc)
			_ = s.channel.SetFeed(id, dc)
			if err := channel.Greet(dc); err != nil {
				log.Warn().Err(err).Msg("greeting")
			}
		})
		dc.OnMessage(func(m webrtc.DataChannelMessage) { s.channel.Dispatch(id, m.Data) })
		dc.OnClose(func() { s.channel.Topics().Unsubscribe(id, id) })
	})

	answer, err := s.answer(r.Context(), pc, offer, false)
	if err != nil {
		s.registry.Destroy(id)
		s.fail(w, err, log)
		return
	}
	log.Info().Msg("publisher connected")
	created(w, id, answer)
}

// Play handles a WHEP offer of a viewer.
func (s *Server) Play(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.channel.IsLive() {
		notLive(w)
		return
	}
	offer, err := readOffer(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := session.NewId()
	log := s.log.Extend(s.log.With().Str(logger.SessionField, id))

	pc, err := s.api.NewPeer()
	if err != nil {
		log.Error().Err(err).Msg("peer")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var video *channel.Track
	attach := func(tracks []channel.Track) error {
		for _, t := range tracks {
			sender, err := pc.AddTrack(t.Local)
			if err != nil {
				return err
			}
			go readRTCP(sender, t, s.channel, log)
			if t.Kind == webrtc.RTPCodecTypeVideo && video == nil {
				video = &t
			}
		}
		return nil
	}
	if err = s.channel.JoinAsSubscriber(id, attach); err != nil {
		_ = pc.Close()
		if errors.Is(err, channel.ErrNotAvailable) {
			notLive(w)
			return
		}
		log.Error().Err(err).Msg("join")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	sess, err := s.registry.Create(id, session.Subscriber, pc)
	if err != nil {
		s.channel.LeaveAsSubscriber(id)
		_ = pc.Close()
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if video != nil {
		ssrc := video.SSRC
		pc.OnICEGatheringStateChange(func(state webrtc.ICEGatheringState) {
			if state != webrtc.ICEGatheringStateComplete {
				return
			}
			if err := s.channel.LimitBitrate(ssrc, s.conf.MaxBitrate); err != nil {
				log.Debug().Err(err).Msg("bitrate limit")
			}
		})
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		sess.SetDataChannel(dc)
		topic := s.channel.Topic()
		dc.OnOpen(func() { s.channel.Topics().Subscribe(topic, id, dc) })
		dc.OnMessage(func(m webrtc.DataChannelMessage) { s.channel.Dispatch(id, m.Data) })
		dc.OnClose(func() { s.channel.Topics().Unsubscribe(topic, id) })
	})

	answer, err := s.answer(r.Context(), pc, offer, true)
	if err != nil {
		s.registry.Destroy(id)
		s.fail(w, err, log)
		return
	}
	log.Info().Int("viewers", s.channel.Viewers()).Msg("viewer connected")
	created(w, id, answer)
}

// Resource handles the teardown of a session.
func (s *Server) Resource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		httpx.MethodNotAllowed(w, http.MethodDelete)
		return
	}
	if !s.registry.Destroy(r.PathValue("id")) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) answer(ctx context.Context, pc *webrtc.PeerConnection, offer string, limit bool) (string, error) {
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		return "", errors.Join(lwebrtc.ErrBadOffer, err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err = pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	desc, err := lwebrtc.Gather(ctx, pc, s.conf.GatherWait)
	if err != nil {
		return "", err
	}
	sdp := desc.SDP
	if limit {
		if limited, err := lwebrtc.LimitVideoBitrate(sdp, s.conf.MaxBitrate); err == nil {
			sdp = limited
		} else {
			s.log.Warn().Err(err).Msg("bitrate limit")
		}
	}
	return lwebrtc.RewriteHosts(sdp, s.env.PublicIp()), nil
}

func (s *Server) onTrack(publisher string, remote *webrtc.TrackRemote, log *logger.Logger) {
	local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, remote.ID(), remote.StreamID())
	if err != nil {
		log.Error().Err(err).Msg("track")
		return
	}
	t := channel.Track{Local: local, SSRC: uint32(remote.SSRC()), Kind: remote.Kind()}
	if err = s.channel.AddTrack(publisher, t); err != nil {
		log.Warn().Err(err).Msg("track of a gone publisher")
		return
	}
	log.Info().Str("kind", remote.Kind().String()).Str("codec", remote.Codec().MimeType).Msg("track")
	go forward(remote, local, log)
}

// checkSecret validates the secret of the /api/webrtc/live path.
// Without a token publishing is open, the same as on /api/whip.
func (s *Server) checkSecret(r *http.Request) error {
	secret, uid := r.PathValue("secret"), r.PathValue("uid")
	if secret == "" && uid == "" {
		return nil
	}
	token := s.env.Token()
	if token == "" {
		return nil
	}
	if api.LiveSecret(uid, token) != secret {
		return errBadSecret
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, err error, log *logger.Logger) {
	if errors.Is(err, lwebrtc.ErrBadOffer) {
		http.Error(w, "Bad offer", http.StatusBadRequest)
		return
	}
	log.Error().Err(err).Msg("negotiation")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func readOffer(r *http.Request) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxOfferSize))
	if err != nil {
		return "", err
	}
	offer := string(b)
	if err = lwebrtc.ValidateOffer(offer); err != nil {
		return "", err
	}
	return offer, nil
}

func notLive(w http.ResponseWriter) {
	http.Error(w, "Live is not started yet.", http.StatusFailedDependency)
}

func created(w http.ResponseWriter, id string, answer string) {
	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", ResourcePath+id)
	w.WriteHeader(http.StatusCreated)
	_, _ = io.WriteString(w, answer)
}
