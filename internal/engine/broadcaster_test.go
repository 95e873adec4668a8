package engine

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/realtime"
	"github.com/example/ride-dispatch/internal/store"
)

func testRide(t *testing.T, st store.Store) *models.Ride {
	t.Helper()
	r := &models.Ride{
		ID:          "ride-1",
		PassengerID: "p1",
		Pickup:      models.Coord{Lat: 9.02, Lon: 38.75},
		Dest:        models.Coord{Lat: 9.05, Lon: 38.78},
		Fare:        150,
		VehicleType: models.VehicleCar,
		Status:      models.StatusRequested,
		RequestTime: time.Now().UTC(),
	}
	if err := st.CreateRide(context.Background(), r); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

func TestBroadcastCreatesPendingOffers(t *testing.T) {
	st := store.NewMemoryStore()
	ride := testRide(t, st)
	g := newFakeGeo(
		models.Driver{ID: "d1", Loc: models.Coord{Lat: 9.021, Lon: 38.75}, VehicleType: models.VehicleCar, Available: true},
		models.Driver{ID: "d2", Loc: models.Coord{Lat: 9.03, Lon: 38.75}, VehicleType: models.VehicleCar, Available: true},
	)
	ch := &fakeChannel{}
	b := NewBroadcaster(g, st, ch, nil, nil, Config{}, testLogger())
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	res, err := b.BroadcastOffers(context.Background(), ride)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.Offers != 2 || res.Empty() {
		t.Fatalf("expected 2 offers, got %+v", res)
	}

	offers, _ := st.OffersByRide(context.Background(), ride.ID)
	if len(offers) != 2 {
		t.Fatalf("expected 2 persisted offers, got %d", len(offers))
	}
	wantExpiry := fixed.Add(25 * time.Second)
	for _, o := range offers {
		if o.Status != models.OfferPending {
			t.Fatalf("offer %s: expected pending, got %s", o.ID, o.Status)
		}
		if !o.ExpiresAt.Equal(wantExpiry) {
			t.Fatalf("offer %s: expected expiry %v, got %v", o.ID, wantExpiry, o.ExpiresAt)
		}
	}

	pubs := ch.byEvent(realtime.EventRideOffer)
	if len(pubs) != 2 {
		t.Fatalf("expected 2 offer pushes, got %d", len(pubs))
	}
	topics := map[string]bool{}
	for _, p := range pubs {
		topics[p.topic] = true
		notice, ok := p.msg.Data.(models.OfferNotice)
		if !ok {
			t.Fatalf("unexpected payload type %T", p.msg.Data)
		}
		if notice.RideID != ride.ID || notice.Fare != ride.Fare || notice.VehicleType != ride.VehicleType {
			t.Fatalf("bad offer notice: %+v", notice)
		}
		if !notice.ExpiresAt.Equal(wantExpiry) {
			t.Fatalf("notice expiry mismatch: %v", notice.ExpiresAt)
		}
	}
	if !topics[realtime.DriverTopic("d1")] || !topics[realtime.DriverTopic("d2")] {
		t.Fatalf("offers not pushed to both driver topics: %v", topics)
	}
}

func TestBroadcastEmptyLeavesRideRequested(t *testing.T) {
	st := store.NewMemoryStore()
	ride := testRide(t, st)
	ch := &fakeChannel{}
	b := NewBroadcaster(newFakeGeo(), st, ch, nil, nil, Config{}, testLogger())

	res, err := b.BroadcastOffers(context.Background(), ride)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if !res.Empty() {
		t.Fatalf("expected empty result, got %+v", res)
	}
	got, _ := st.GetRide(context.Background(), ride.ID)
	if got.Status != models.StatusRequested {
		t.Fatalf("ride should stay Requested, got %s", got.Status)
	}
	if offers, _ := st.OffersByRide(context.Background(), ride.ID); len(offers) != 0 {
		t.Fatalf("expected no offers, got %d", len(offers))
	}
	if len(ch.byEvent(realtime.EventRideOffer)) != 0 {
		t.Fatal("no pushes expected for empty broadcast")
	}
}

func TestBroadcastPushFailureDoesNotRollBack(t *testing.T) {
	st := store.NewMemoryStore()
	ride := testRide(t, st)
	g := newFakeGeo(models.Driver{ID: "d1", Loc: ride.Pickup, VehicleType: models.VehicleCar, Available: true})
	b := NewBroadcaster(g, st, &fakeChannel{fail: true}, nil, nil, Config{}, testLogger())

	res, err := b.BroadcastOffers(context.Background(), ride)
	if err != nil {
		t.Fatalf("push failure must not fail the broadcast: %v", err)
	}
	if res.Offers != 1 {
		t.Fatalf("expected 1 offer, got %d", res.Offers)
	}
	offers, _ := st.OffersByRide(context.Background(), ride.ID)
	if len(offers) != 1 || offers[0].Status != models.OfferPending {
		t.Fatalf("offer should be persisted despite push failure: %v", offers)
	}
}

func TestBroadcastFiltersVehicleType(t *testing.T) {
	st := store.NewMemoryStore()
	ride := testRide(t, st) // wants a Car
	g := newFakeGeo(
		models.Driver{ID: "bajaj", Loc: ride.Pickup, VehicleType: models.VehicleBajaj, Available: true},
		models.Driver{ID: "car", Loc: ride.Pickup, VehicleType: models.VehicleCar, Available: true},
	)
	ch := &fakeChannel{}
	b := NewBroadcaster(g, st, ch, nil, nil, Config{}, testLogger())
	res, err := b.BroadcastOffers(context.Background(), ride)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if res.Offers != 1 || res.DriverIDs[0] != "car" {
		t.Fatalf("expected only the car driver, got %+v", res)
	}
}

func TestRequestRideCreatesAndBroadcasts(t *testing.T) {
	st := store.NewMemoryStore()
	ev := &fakeEvents{}
	g := newFakeGeo(models.Driver{ID: "d1", Loc: models.Coord{Lat: 9.021, Lon: 38.75}, VehicleType: models.VehicleCar, Available: true})
	b := NewBroadcaster(g, st, &fakeChannel{}, ev, nil, Config{}, testLogger())

	ride, res, err := b.RequestRide(context.Background(), models.RideRequest{
		PassengerID: "p1",
		Pickup:      models.Coord{Lat: 9.02, Lon: 38.75},
		Dest:        models.Coord{Lat: 9.05, Lon: 38.78},
		Fare:        120,
		VehicleType: models.VehicleCar,
	})
	if err != nil {
		t.Fatalf("request ride: %v", err)
	}
	if ride.ID == "" || ride.Status != models.StatusRequested {
		t.Fatalf("bad ride: %+v", ride)
	}
	if ride.DistanceKm <= 0 {
		t.Fatalf("expected computed distance, got %f", ride.DistanceKm)
	}
	if res.Offers != 1 {
		t.Fatalf("expected 1 offer, got %+v", res)
	}
	if got, err := st.GetRide(context.Background(), ride.ID); err != nil || got.Status != models.StatusRequested {
		t.Fatalf("ride not persisted: %v %v", got, err)
	}
	if !ev.has(EventOfferBroadcast) {
		t.Fatal("expected offer_broadcast domain event")
	}
}
