package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/realtime"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeGeo serves a fixed candidate list and records availability flips.
type fakeGeo struct {
	mu      sync.Mutex
	drivers []models.Driver
	avail   map[string]bool
}

func newFakeGeo(drivers ...models.Driver) *fakeGeo {
	return &fakeGeo{drivers: drivers, avail: make(map[string]bool)}
}

func (f *fakeGeo) Nearby(lat, lon, radiusKm float64, limit int, vehicle models.VehicleType) []models.Driver {
	out := make([]models.Driver, 0, len(f.drivers))
	for _, d := range f.drivers {
		if vehicle != "" && d.VehicleType != vehicle {
			continue
		}
		out = append(out, d)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (f *fakeGeo) SetAvailable(driverID string, available bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.avail[driverID] = available
}

func (f *fakeGeo) available(driverID string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.avail[driverID]
	return v, ok
}

type published struct {
	topic string
	msg   realtime.Message
}

// fakeChannel records publishes; Subscribe/Unsubscribe are no-ops.
type fakeChannel struct {
	mu   sync.Mutex
	pubs []published
	fail bool
}

func (f *fakeChannel) Subscribe(topic string, s realtime.Subscriber)   {}
func (f *fakeChannel) Unsubscribe(topic string, s realtime.Subscriber) {}

func (f *fakeChannel) Publish(topic string, msg realtime.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("publish fail")
	}
	f.pubs = append(f.pubs, published{topic: topic, msg: msg})
	return nil
}

func (f *fakeChannel) byEvent(event string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.pubs {
		if p.msg.Event == event {
			out = append(out, p)
		}
	}
	return out
}

// waitForEvent polls for async publishes with a deadline.
func (f *fakeChannel) waitForEvent(t *testing.T, event string, n int) []published {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.byEvent(event); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := f.byEvent(event)
	t.Fatalf("timed out waiting for %d %q publishes, have %d", n, event, len(got))
	return got
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) PublishEvent(ctx context.Context, event, rideID string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEvents) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakePayments struct {
	mu       sync.Mutex
	held     int64
	captured []string
	canceled []string
}

func (f *fakePayments) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = amount
	return "pi_test", nil
}

func (f *fakePayments) Capture(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captured = append(f.captured, ref)
	return nil
}

func (f *fakePayments) Cancel(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, ref)
	return nil
}
