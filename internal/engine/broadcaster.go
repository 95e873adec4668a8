package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/eta"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/realtime"
	"github.com/example/ride-dispatch/internal/store"
)

// Broadcaster fans a ride request out to nearby candidate drivers as
// time-limited offers.
type Broadcaster struct {
	geo     Geo
	store   store.Store
	channel realtime.Channel
	events  EventPublisher // optional
	eta     *eta.Estimator // optional
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewBroadcaster(g Geo, st store.Store, ch realtime.Channel, ev EventPublisher, est *eta.Estimator, cfg Config, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		geo:     g,
		store:   st,
		channel: ch,
		events:  ev,
		eta:     est,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// BroadcastResult reports how a broadcast went. Empty means no eligible
// driver was found and the ride is still Requested; the caller may retry
// with a wider radius or escalate to a dispatcher.
type BroadcastResult struct {
	RideID    string    `json:"ride_id"`
	Offers    int       `json:"offers"`
	DriverIDs []string  `json:"driver_ids,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (r BroadcastResult) Empty() bool { return r.Offers == 0 }

// RequestRide persists a new ride in Requested and immediately broadcasts
// offers for it.
func (b *Broadcaster) RequestRide(ctx context.Context, req models.RideRequest) (*models.Ride, BroadcastResult, error) {
	status, err := lifecycle.Next("", lifecycle.EventRequest)
	if err != nil {
		return nil, BroadcastResult{}, err
	}
	ride := &models.Ride{
		ID:            uuid.NewString(),
		PassengerID:   req.PassengerID,
		PickupAddress: req.PickupAddress,
		Pickup:        req.Pickup,
		DestAddress:   req.DestAddress,
		Dest:          req.Dest,
		DistanceKm:    geo.HaversineKm(req.Pickup.Lat, req.Pickup.Lon, req.Dest.Lat, req.Dest.Lon),
		Fare:          req.Fare,
		VehicleType:   req.VehicleType,
		Status:        status,
		RequestTime:   b.now().UTC(),
	}
	if err := b.store.CreateRide(ctx, ride); err != nil {
		return nil, BroadcastResult{}, err
	}
	res, err := b.BroadcastOffers(ctx, ride)
	return ride, res, err
}

// BroadcastOffers finds candidates, persists their offers in one
// transaction and pushes an offer notice per driver. Push failures do not
// roll anything back: an unnotified driver simply never accepts and the
// offer lapses.
func (b *Broadcaster) BroadcastOffers(ctx context.Context, ride *models.Ride) (BroadcastResult, error) {
	candidates := b.geo.Nearby(ride.Pickup.Lat, ride.Pickup.Lon, b.cfg.RadiusKm, b.cfg.CandidateLimit, ride.VehicleType)
	if len(candidates) == 0 {
		observability.BroadcastsEmpty.Inc()
		b.logger.Info("broadcast found no candidates", "ride_id", ride.ID, "radius_km", b.cfg.RadiusKm, "vehicle_type", ride.VehicleType)
		return BroadcastResult{RideID: ride.ID}, nil
	}

	now := b.now().UTC()
	expiresAt := now.Add(b.cfg.OfferTTL)
	offers := make([]*models.Offer, 0, len(candidates))
	for _, d := range candidates {
		offers = append(offers, &models.Offer{
			ID:        uuid.NewString(),
			RideID:    ride.ID,
			DriverID:  d.ID,
			Status:    models.OfferPending,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		})
	}
	if err := b.store.CreateOffers(ctx, offers); err != nil {
		return BroadcastResult{RideID: ride.ID}, err
	}

	res := BroadcastResult{RideID: ride.ID, Offers: len(offers), ExpiresAt: expiresAt}
	for _, d := range candidates {
		res.DriverIDs = append(res.DriverIDs, d.ID)
		notice := models.OfferNotice{
			RideID:        ride.ID,
			PickupAddress: ride.PickupAddress,
			Pickup:        ride.Pickup,
			DestAddress:   ride.DestAddress,
			Dest:          ride.Dest,
			Fare:          ride.Fare,
			VehicleType:   ride.VehicleType,
			ExpiresAt:     expiresAt,
		}
		if b.eta != nil {
			notice.ETASeconds = b.eta.PickupSeconds(d.Loc, ride.Pickup)
		}
		if err := b.channel.Publish(realtime.DriverTopic(d.ID), realtime.Message{Event: realtime.EventRideOffer, Data: notice}); err != nil {
			b.logger.Warn("offer push failed", "ride_id", ride.ID, "driver_id", d.ID, "error", err)
		}
	}
	observability.OffersBroadcast.Add(float64(len(offers)))
	b.publishEvent(ctx, EventOfferBroadcast, ride.ID, res)
	b.logger.Info("offers broadcast", "ride_id", ride.ID, "offers", len(offers), "expires_at", expiresAt)
	return res, nil
}

func (b *Broadcaster) publishEvent(ctx context.Context, event, rideID string, payload any) {
	if b.events == nil {
		return
	}
	if err := b.events.PublishEvent(ctx, event, rideID, payload); err != nil {
		b.logger.Warn("domain event publish failed", "event", event, "ride_id", rideID, "error", err)
	}
}
