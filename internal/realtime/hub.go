package realtime

import (
	"log/slog"
	"sync"
)

// Hub is the in-process Channel: a topic -> subscriber fan-out map.
// It backs single-node deployments and the websocket gateway.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{topics: make(map[string]map[Subscriber]struct{}), logger: logger}
}

func (h *Hub) Subscribe(topic string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[Subscriber]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
}

func (h *Hub) Unsubscribe(topic string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) Publish(topic string, msg Message) error {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.topics[topic]))
	for s := range h.topics[topic] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.Deliver(topic, msg); err != nil {
			h.logger.Warn("realtime delivery failed", "topic", topic, "event", msg.Event, "error", err)
		}
	}
	return nil
}
