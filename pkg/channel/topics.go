package channel

import (
	"sync"

	"github.com/livecast/livecast/pkg/logger"
)

// Sender is a text message sink, usually a data channel.
type Sender interface {
	SendText(string) error
}

// Topics is a fan-out of text messages keyed by topic.
// Subscribers are identified by their session ids.
type Topics struct {
	mu   sync.RWMutex
	subs map[string]map[string]Sender
	log  *logger.Logger
}

func NewTopics(log *logger.Logger) *Topics {
	return &Topics{subs: make(map[string]map[string]Sender), log: log}
}

func (t *Topics) Subscribe(topic, id string, s Sender) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.subs[topic]
	if !ok {
		m = make(map[string]Sender)
		t.subs[topic] = m
	}
	m[id] = s
}

func (t *Topics) Unsubscribe(topic, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.subs[topic]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(t.subs, topic)
		}
	}
}

// Drop removes the topic with all its subscribers.
func (t *Topics) Drop(topic string) {
	t.mu.Lock()
	delete(t.subs, topic)
	t.mu.Unlock()
}

// Publish sends the message to every subscriber of the topic except from.
// Returns the number of receivers.
func (t *Topics) Publish(topic string, msg string, from string) int {
	t.mu.RLock()
	receivers := make([]Sender, 0, len(t.subs[topic]))
	for id, s := range t.subs[topic] {
		if id != from {
			receivers = append(receivers, s)
		}
	}
	t.mu.RUnlock()

	for _, s := range receivers {
		if err := s.SendText(msg); err != nil {
			t.log.Warn().Err(err).Str("topic", topic).Msg("publish")
		}
	}
	return len(receivers)
}

func (t *Topics) Len(topic string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs[topic])
}
