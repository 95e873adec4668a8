package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/realtime"
	"github.com/example/ride-dispatch/internal/store"
)

// Coordinator owns the exactly-once assignment transition and the
// driver-side trip progression calls. All ride mutations run while
// holding the ride's exclusive lock; concurrent accepts for one ride are
// ordered solely by lock acquisition.
type Coordinator struct {
	store    store.Store
	channel  realtime.Channel
	geo      Geo            // optional, availability bookkeeping
	events   EventPublisher // optional
	payments FarePayments   // optional
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewCoordinator(st store.Store, ch realtime.Channel, g Geo, ev EventPublisher, pay FarePayments, cfg Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:    st,
		channel:  ch,
		geo:      g,
		events:   ev,
		payments: pay,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// AcceptResult is the typed outcome of a driver's claim. Accepted=false
// with a nil error means the ride went to someone else or the offer
// lapsed; the driver should look for another ride.
type AcceptResult struct {
	Accepted bool         `json:"accepted"`
	Ride     *models.Ride `json:"ride,omitempty"`
}

// AcceptOffer performs the lock-then-check-then-mutate sequence. Exactly
// one concurrent accept for a ride can observe it assignable; every other
// caller gets accepted=false. Returned errors are limited to NotFound,
// LockTimeout (retryable) and storage failures.
func (c *Coordinator) AcceptOffer(ctx context.Context, rideID, driverID string) (AcceptResult, error) {
	var (
		ride   *models.Ride
		losers []string
	)
	err := c.store.WithRideLock(ctx, rideID, c.cfg.LockWait, func(tx store.RideTx) error {
		r := tx.Ride()
		// re-check under the lock: a cancel or a competing accept may have
		// committed while we were waiting
		if !lifecycle.Assignable(r.Status) || r.DriverID != "" {
			return ErrOfferUnavailable
		}
		offer, err := tx.Offer(driverID)
		if errors.Is(err, store.ErrOfferNotFound) {
			return ErrOfferUnavailable
		}
		if err != nil {
			return err
		}
		now := c.now().UTC()
		// lazy TTL enforcement: nobody sweeps an offer into expired before
		// this point is reached
		if offer.Status != models.OfferPending || now.After(offer.ExpiresAt) {
			return ErrOfferUnavailable
		}
		next, err := lifecycle.Next(r.Status, lifecycle.EventAssign)
		if err != nil {
			return ErrOfferUnavailable
		}
		r.DriverID = driverID
		r.Status = next
		r.AssignedTime = &now
		if err := tx.UpdateRide(r); err != nil {
			return err
		}
		if err := tx.MarkOfferAccepted(driverID, now); err != nil {
			return err
		}
		losers, err = tx.ExpireSiblingOffers(driverID)
		if err != nil {
			return err
		}
		ride = r
		return nil
	})

	switch {
	case err == nil:
		observability.AssignmentsTotal.Inc()
		if c.geo != nil {
			c.geo.SetAvailable(driverID, false)
		}
		go c.announceAssignment(ride, losers)
		if c.payments != nil && ride.Fare > 0 {
			go c.holdFare(ride)
		}
		c.logger.Info("ride assigned", "ride_id", rideID, "driver_id", driverID, "losing_offers", len(losers))
		return AcceptResult{Accepted: true, Ride: ride}, nil
	case errors.Is(err, ErrOfferUnavailable):
		observability.AssignmentConflicts.Inc()
		c.logger.Info("accept lost", "ride_id", rideID, "driver_id", driverID)
		return AcceptResult{Accepted: false}, nil
	case errors.Is(err, store.ErrLockTimeout):
		observability.LockTimeouts.Inc()
		return AcceptResult{}, err
	default:
		return AcceptResult{}, err
	}
}

// Transition applies a lifecycle event (arrive, start, end, cancel) under
// the ride lock. A cancel also expires any still-pending offers so a
// racing accept cannot win afterwards.
func (c *Coordinator) Transition(ctx context.Context, rideID string, ev lifecycle.Event) (*models.Ride, error) {
	var (
		ride   *models.Ride
		losers []string
	)
	err := c.store.WithRideLock(ctx, rideID, c.cfg.LockWait, func(tx store.RideTx) error {
		r := tx.Ride()
		next, err := lifecycle.Next(r.Status, ev)
		if err != nil {
			return err
		}
		now := c.now().UTC()
		r.Status = next
		switch ev {
		case lifecycle.EventStart:
			r.StartTime = &now
		case lifecycle.EventEnd:
			r.EndTime = &now
		case lifecycle.EventCancel, lifecycle.EventExpire:
			losers, err = tx.ExpireSiblingOffers("")
			if err != nil {
				return err
			}
		}
		if err := tx.UpdateRide(r); err != nil {
			return err
		}
		ride = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.publishStatus(ride)
	switch ev {
	case lifecycle.EventEnd:
		if c.geo != nil && ride.DriverID != "" {
			c.geo.SetAvailable(ride.DriverID, true)
		}
		if c.payments != nil && ride.PaymentRef != "" {
			go c.captureFare(ride)
		}
		c.publishEvent(ctx, EventRideCompleted, ride.ID, models.StatusUpdate{RideID: ride.ID, Status: ride.Status, DriverID: ride.DriverID})
	case lifecycle.EventCancel:
		if c.geo != nil && ride.DriverID != "" {
			c.geo.SetAvailable(ride.DriverID, true)
		}
		go c.notifyLosers(ride.ID, losers)
		if c.payments != nil && ride.PaymentRef != "" {
			go c.releaseFare(ride)
		}
		c.publishEvent(ctx, EventRideCanceled, ride.ID, models.StatusUpdate{RideID: ride.ID, Status: ride.Status, DriverID: ride.DriverID})
	}
	c.logger.Info("ride transition", "ride_id", rideID, "event", string(ev), "status", ride.Status)
	return ride, nil
}

// announceAssignment runs off the accept path: tell losing drivers the
// ride is gone, push the new status on the ride topic and emit domain
// events. The accept has already committed; none of this can fail it.
func (c *Coordinator) announceAssignment(ride *models.Ride, losers []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.notifyLosers(ride.ID, losers)
	c.publishStatus(ride)
	c.publishEvent(ctx, EventRideAssigned, ride.ID, models.StatusUpdate{RideID: ride.ID, Status: ride.Status, DriverID: ride.DriverID})
	for _, d := range losers {
		c.publishEvent(ctx, EventRideLost, ride.ID, map[string]string{"ride_id": ride.ID, "driver_id": d})
	}
}

func (c *Coordinator) notifyLosers(rideID string, losers []string) {
	for _, d := range losers {
		msg := realtime.Message{Event: realtime.EventOfferTaken, Data: models.AssignmentLost{RideID: rideID}}
		if err := c.channel.Publish(realtime.DriverTopic(d), msg); err != nil {
			c.logger.Warn("loser notification failed", "ride_id", rideID, "driver_id", d, "error", err)
		}
	}
}

func (c *Coordinator) publishStatus(ride *models.Ride) {
	msg := realtime.Message{Event: realtime.EventRideStatus, Data: models.StatusUpdate{RideID: ride.ID, Status: ride.Status, DriverID: ride.DriverID}}
	if err := c.channel.Publish(realtime.RideTopic(ride.ID), msg); err != nil {
		c.logger.Warn("status push failed", "ride_id", ride.ID, "error", err)
	}
}

func (c *Coordinator) publishEvent(ctx context.Context, event, rideID string, payload any) {
	if c.events == nil {
		return
	}
	if err := c.events.PublishEvent(ctx, event, rideID, payload); err != nil {
		c.logger.Warn("domain event publish failed", "event", event, "ride_id", rideID, "error", err)
	}
}

func (c *Coordinator) holdFare(ride *models.Ride) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ref, err := c.payments.Hold(ctx, fareMinorUnits(ride.Fare), c.cfg.Currency, ride.PassengerID)
	if err != nil {
		c.logger.Error("fare hold failed", "ride_id", ride.ID, "error", err)
		return
	}
	if err := c.store.SetPaymentRef(ctx, ride.ID, ref); err != nil {
		c.logger.Error("storing payment ref failed", "ride_id", ride.ID, "error", err)
	}
}

func (c *Coordinator) captureFare(ride *models.Ride) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.payments.Capture(ctx, ride.PaymentRef); err != nil {
		c.logger.Error("fare capture failed", "ride_id", ride.ID, "error", err)
	}
}

func (c *Coordinator) releaseFare(ride *models.Ride) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.payments.Cancel(ctx, ride.PaymentRef); err != nil {
		c.logger.Error("fare release failed", "ride_id", ride.ID, "error", err)
	}
}

func fareMinorUnits(fare float64) int64 {
	return int64(math.Round(fare * 100))
}
