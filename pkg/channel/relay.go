package channel

import (
	"github.com/goccy/go-json"
	"github.com/livecast/livecast/pkg/api"
	"github.com/livecast/livecast/pkg/com"
	"github.com/livecast/livecast/pkg/logger"
)

const greeting = "Connected to media server"

// Greet sends the welcome message to a new publisher.
func Greet(s Sender) error {
	msg, err := api.MessageEnvelope(com.NewUid().String(), greeting)
	if err != nil {
		return err
	}
	return s.SendText(string(msg))
}

// Dispatch routes a data channel message of the session to the others.
// Publisher messages go to all viewers, viewer messages go to the publisher
// and the rest of the viewers. Meta updates are accepted only from the publisher.
func (c *Channel) Dispatch(from string, data []byte) {
	topic := c.Topic()
	if topic == "" {
		return
	}
	log := c.log.Extend(c.log.With().Str(logger.SessionField, from))

	e, err := api.ParseEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Msg("bad message")
		return
	}
	isPublisher := from == topic

	switch e.Type {
	case api.EnvelopeMeta:
		if !isPublisher {
			log.Warn().Msg("meta from a viewer")
			return
		}
		var meta api.Meta
		if err := json.Unmarshal(e.Body, &meta); err != nil {
			log.Warn().Err(err).Msg("bad meta")
			return
		}
		if err := c.SetMeta(from, meta); err != nil {
			return
		}
	case api.EnvelopeViews:
		log.Warn().Msg("views can't be sent")
		return
	}

	msg, err := e.Normalized()
	if err != nil {
		log.Warn().Err(err).Msg("bad message")
		return
	}
	n := c.topics.Publish(topic, string(msg), from)
	log.Debug().Int("n", n).Msgf("%s ->", e.Type)
}
