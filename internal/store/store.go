// Package store persists rides, offers and ride chat. The Ride row is the
// single source of truth for assignment; offer rows are only mutated while
// the ride lock is held.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	ErrRideNotFound  = errors.New("ride not found")
	ErrOfferNotFound = errors.New("offer not found")
	// ErrLockTimeout means lock contention exceeded the bounded wait.
	// It is the only store error callers may retry.
	ErrLockTimeout = errors.New("ride lock wait timed out")
)

// Store is the persistence contract shared by the Postgres and in-memory
// implementations.
type Store interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	SetPaymentRef(ctx context.Context, rideID, ref string) error

	// CreateOffers persists the whole candidate set in one transaction;
	// either every offer lands or none do.
	CreateOffers(ctx context.Context, offers []*models.Offer) error
	OffersByRide(ctx context.Context, rideID string) ([]*models.Offer, error)
	// ExpireStaleOffers marks pending offers past their expiry as expired
	// and returns how many it touched. Advisory reconciliation only;
	// correctness never depends on it running.
	ExpireStaleOffers(ctx context.Context, now time.Time) (int64, error)

	SaveChatMessage(ctx context.Context, m *models.ChatMessage) error
	ChatHistory(ctx context.Context, rideID string) ([]*models.ChatMessage, error)

	// WithRideLock runs fn while holding an exclusive lock on the ride.
	// All mutations inside fn commit atomically when fn returns nil and are
	// discarded otherwise. Waiting on contention is bounded by wait; past
	// that the call fails with ErrLockTimeout.
	WithRideLock(ctx context.Context, rideID string, wait time.Duration, fn func(tx RideTx) error) error
}

// RideTx is the view of a ride and its offers inside a locked transaction.
type RideTx interface {
	// Ride returns the row as read after lock acquisition. Mutate the
	// returned value and pass it to UpdateRide.
	Ride() *models.Ride
	UpdateRide(r *models.Ride) error
	// Offer looks up this ride's offer for one driver.
	Offer(driverID string) (*models.Offer, error)
	MarkOfferAccepted(driverID string, at time.Time) error
	// ExpireSiblingOffers marks every pending offer except the winner's as
	// expired and returns the losing driver ids. An empty winner expires
	// all pending offers.
	ExpireSiblingOffers(winnerDriverID string) ([]string, error)
}
