package realtime

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type recordingSub struct {
	mu   sync.Mutex
	got  []Message
	fail bool
}

func (r *recordingSub) Deliver(topic string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("deliver fail")
	}
	r.got = append(r.got, msg)
	return nil
}

func (r *recordingSub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubPublishReachesSubscribers(t *testing.T) {
	h := newTestHub()
	a := &recordingSub{}
	b := &recordingSub{}
	h.Subscribe(DriverTopic("d1"), a)
	h.Subscribe(DriverTopic("d1"), b)
	h.Subscribe(DriverTopic("d2"), &recordingSub{})

	if err := h.Publish(DriverTopic("d1"), Message{Event: EventRideOffer}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("expected both subscribers notified, got %d/%d", a.count(), b.count())
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub()
	a := &recordingSub{}
	h.Subscribe(RideTopic("r1"), a)
	h.Unsubscribe(RideTopic("r1"), a)
	_ = h.Publish(RideTopic("r1"), Message{Event: EventChatMessage})
	if a.count() != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", a.count())
	}
}

func TestHubPublishToEmptyTopic(t *testing.T) {
	h := newTestHub()
	if err := h.Publish(DriverTopic("ghost"), Message{Event: EventOfferTaken}); err != nil {
		t.Fatalf("publishing to empty topic should be a no-op, got %v", err)
	}
}

func TestHubFailedDeliveryDoesNotBlockOthers(t *testing.T) {
	h := newTestHub()
	bad := &recordingSub{fail: true}
	good := &recordingSub{}
	h.Subscribe(DriverTopic("d1"), bad)
	h.Subscribe(DriverTopic("d1"), good)
	if err := h.Publish(DriverTopic("d1"), Message{Event: EventRideOffer}); err != nil {
		t.Fatalf("publish should swallow per-subscriber failures, got %v", err)
	}
	if good.count() != 1 {
		t.Fatalf("expected healthy subscriber to still receive, got %d", good.count())
	}
}
