// Package engine implements driver discovery and ride assignment: offer
// broadcast over the realtime channel and the exactly-once accept path.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrOfferUnavailable means an accept arrived after the ride was already
// assigned, canceled or expired, or the driver's offer lapsed. It is a
// routine outcome, not a system failure; callers surface accepted=false.
var ErrOfferUnavailable = errors.New("offer no longer available")

// Domain event names emitted to back-office collaborators.
const (
	EventOfferBroadcast = "offer_broadcast"
	EventRideAssigned   = "ride_assigned"
	EventRideLost       = "ride_lost"
	EventRideCompleted  = "ride_completed"
	EventRideCanceled   = "ride_canceled"
)

// Geo is the slice of the proximity index the engine needs.
type Geo interface {
	Nearby(lat, lon, radiusKm float64, limit int, vehicle models.VehicleType) []models.Driver
	SetAvailable(driverID string, available bool)
}

// EventPublisher emits domain events for external collaborators
// (notifications, reporting). Best-effort; failures are logged.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event, rideID string, payload any) error
}

// FarePayments holds a passenger's fare at assignment, captures it at
// completion and releases it on cancel.
type FarePayments interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, paymentRef string) error
	Cancel(ctx context.Context, paymentRef string) error
}

// Config carries the dispatch tunables. Instances are built explicitly
// and injected; there is no process-wide dispatcher state.
type Config struct {
	RadiusKm       float64
	CandidateLimit int
	OfferTTL       time.Duration
	LockWait       time.Duration
	Currency       string
}

func (c Config) withDefaults() Config {
	if c.RadiusKm <= 0 {
		c.RadiusKm = 5.0
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 5
	}
	if c.OfferTTL <= 0 {
		c.OfferTTL = 25 * time.Second
	}
	if c.LockWait <= 0 {
		c.LockWait = 3 * time.Second
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	return c
}
