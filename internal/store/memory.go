package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// MemoryStore keeps everything in maps. It honours the same locking and
// transaction semantics as the Postgres store, which makes it usable both
// for local runs and for the concurrency tests.
type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[string]*models.Ride
	offers map[string][]*models.Offer // keyed by ride id
	chats  map[string][]*models.ChatMessage
	locks  map[string]chan struct{} // one-slot semaphore per ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:  make(map[string]*models.Ride),
		offers: make(map[string][]*models.Offer),
		chats:  make(map[string][]*models.ChatMessage),
		locks:  make(map[string]chan struct{}),
	}
}

func (m *MemoryStore) CreateRide(ctx context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return fmt.Errorf("ride %s already exists", r.ID)
	}
	m.rides[r.ID] = copyRide(r)
	return nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrRideNotFound
	}
	return copyRide(r), nil
}

func (m *MemoryStore) SetPaymentRef(ctx context.Context, rideID, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrRideNotFound
	}
	r.PaymentRef = ref
	return nil
}

func (m *MemoryStore) CreateOffers(ctx context.Context, offers []*models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range offers {
		for _, existing := range m.offers[o.RideID] {
			if existing.DriverID == o.DriverID {
				return fmt.Errorf("duplicate offer for ride %s driver %s", o.RideID, o.DriverID)
			}
		}
	}
	for _, o := range offers {
		m.offers[o.RideID] = append(m.offers[o.RideID], copyOffer(o))
	}
	return nil
}

func (m *MemoryStore) OffersByRide(ctx context.Context, rideID string) ([]*models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Offer, 0, len(m.offers[rideID]))
	for _, o := range m.offers[rideID] {
		out = append(out, copyOffer(o))
	}
	return out, nil
}

func (m *MemoryStore) ExpireStaleOffers(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, offers := range m.offers {
		for _, o := range offers {
			if o.Status == models.OfferPending && now.After(o.ExpiresAt) {
				o.Status = models.OfferExpired
				n++
			}
		}
	}
	return n, nil
}

func (m *MemoryStore) SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[msg.RideID]; !ok {
		return ErrRideNotFound
	}
	c := *msg
	m.chats[msg.RideID] = append(m.chats[msg.RideID], &c)
	return nil
}

func (m *MemoryStore) ChatHistory(ctx context.Context, rideID string) ([]*models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.ChatMessage, 0, len(m.chats[rideID]))
	for _, c := range m.chats[rideID] {
		cc := *c
		out = append(out, &cc)
	}
	return out, nil
}

func (m *MemoryStore) WithRideLock(ctx context.Context, rideID string, wait time.Duration, fn func(tx RideTx) error) error {
	m.mu.RLock()
	_, exists := m.rides[rideID]
	m.mu.RUnlock()
	if !exists {
		return ErrRideNotFound
	}

	sem := m.semFor(rideID)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
	case <-timer.C:
		return ErrLockTimeout
	case <-ctx.Done():
		return ErrLockTimeout
	}
	defer func() { <-sem }()

	// snapshot under the data mutex; fn mutates copies only
	m.mu.RLock()
	r, ok := m.rides[rideID]
	if !ok {
		m.mu.RUnlock()
		return ErrRideNotFound
	}
	tx := &memRideTx{ride: copyRide(r)}
	for _, o := range m.offers[rideID] {
		tx.offers = append(tx.offers, copyOffer(o))
	}
	m.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	// commit
	m.mu.Lock()
	m.rides[rideID] = tx.ride
	m.offers[rideID] = tx.offers
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) semFor(rideID string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.locks[rideID]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[rideID] = sem
	}
	return sem
}

type memRideTx struct {
	ride   *models.Ride
	offers []*models.Offer
}

func (t *memRideTx) Ride() *models.Ride { return t.ride }

func (t *memRideTx) UpdateRide(r *models.Ride) error {
	t.ride = copyRide(r)
	return nil
}

func (t *memRideTx) Offer(driverID string) (*models.Offer, error) {
	for _, o := range t.offers {
		if o.DriverID == driverID {
			return copyOffer(o), nil
		}
	}
	return nil, ErrOfferNotFound
}

func (t *memRideTx) MarkOfferAccepted(driverID string, at time.Time) error {
	for _, o := range t.offers {
		if o.DriverID == driverID {
			o.Status = models.OfferAccepted
			o.AcceptedAt = &at
			return nil
		}
	}
	return ErrOfferNotFound
}

func (t *memRideTx) ExpireSiblingOffers(winnerDriverID string) ([]string, error) {
	var losers []string
	for _, o := range t.offers {
		if o.DriverID == winnerDriverID || o.Status != models.OfferPending {
			continue
		}
		o.Status = models.OfferExpired
		losers = append(losers, o.DriverID)
	}
	return losers, nil
}

func copyRide(r *models.Ride) *models.Ride {
	c := *r
	c.AssignedTime = copyTime(r.AssignedTime)
	c.StartTime = copyTime(r.StartTime)
	c.EndTime = copyTime(r.EndTime)
	return &c
}

func copyOffer(o *models.Offer) *models.Offer {
	c := *o
	c.AcceptedAt = copyTime(o.AcceptedAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
