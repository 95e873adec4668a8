package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisChannel bridges the local Hub over Redis pub/sub so offers reach
// drivers connected to other nodes. Topics map 1:1 onto Redis channels.
type RedisChannel struct {
	client *redis.Client
	local  *Hub
	logger *slog.Logger

	mu      sync.Mutex
	remotes map[string]*redis.PubSub
}

func NewRedisChannel(client *redis.Client, logger *slog.Logger) *RedisChannel {
	return &RedisChannel{
		client:  client,
		local:   NewHub(logger),
		logger:  logger,
		remotes: make(map[string]*redis.PubSub),
	}
}

func (r *RedisChannel) Subscribe(topic string, s Subscriber) {
	r.local.Subscribe(topic, s)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.remotes[topic]; ok {
		return
	}
	ps := r.client.Subscribe(context.Background(), topic)
	r.remotes[topic] = ps
	go r.relay(topic, ps)
}

func (r *RedisChannel) Unsubscribe(topic string, s Subscriber) {
	r.local.Unsubscribe(topic, s)

	r.local.mu.RLock()
	_, stillUsed := r.local.topics[topic]
	r.local.mu.RUnlock()
	if stillUsed {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ps, ok := r.remotes[topic]; ok {
		_ = ps.Close()
		delete(r.remotes, topic)
	}
}

func (r *RedisChannel) Publish(topic string, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.client.Publish(context.Background(), topic, b).Err(); err != nil {
		r.logger.Warn("redis publish failed", "topic", topic, "event", msg.Event, "error", err)
		return err
	}
	return nil
}

// relay feeds remote messages into the local hub until the subscription
// is closed.
func (r *RedisChannel) relay(topic string, ps *redis.PubSub) {
	for m := range ps.Channel() {
		var msg Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			r.logger.Warn("bad realtime payload", "topic", topic, "error", err)
			continue
		}
		_ = r.local.Publish(topic, msg)
	}
}
