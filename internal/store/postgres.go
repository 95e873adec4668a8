package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

const rideColumns = `id, passenger_id, driver_id, pickup_address, pickup_lat, pickup_lon,
	dest_address, dest_lat, dest_lon, distance_km, fare, vehicle_type, status,
	payment_ref, request_time, assigned_time, start_time, end_time`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		r.ID, r.PassengerID, nullString(r.DriverID), nullString(r.PickupAddress),
		r.Pickup.Lat, r.Pickup.Lon, nullString(r.DestAddress), r.Dest.Lat, r.Dest.Lon,
		r.DistanceKm, r.Fare, string(r.VehicleType), string(r.Status),
		nullString(r.PaymentRef), r.RequestTime, r.AssignedTime, r.StartTime, r.EndTime)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	return r, err
}

func (p *PostgresStore) SetPaymentRef(ctx context.Context, rideID, ref string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET payment_ref = $1 WHERE id = $2`, ref, rideID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRideNotFound
	}
	return nil
}

func (p *PostgresStore) CreateOffers(ctx context.Context, offers []*models.Offer) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, o := range offers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ride_offers(id, ride_id, driver_id, status, created_at, expires_at, accepted_at)
			VALUES($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, o.RideID, o.DriverID, string(o.Status), o.CreatedAt, o.ExpiresAt, o.AcceptedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) OffersByRide(ctx context.Context, rideID string) ([]*models.Offer, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, ride_id, driver_id, status, created_at, expires_at, accepted_at
		FROM ride_offers WHERE ride_id = $1 ORDER BY created_at`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ExpireStaleOffers(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ride_offers SET status = 'expired' WHERE status = 'pending' AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PostgresStore) SaveChatMessage(ctx context.Context, m *models.ChatMessage) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO chat_messages(id, ride_id, sender_role, sender_id, message, created_at)
		VALUES($1,$2,$3,$4,$5,$6)`,
		m.ID, m.RideID, m.SenderRole, m.SenderID, m.Message, m.CreatedAt)
	return err
}

func (p *PostgresStore) ChatHistory(ctx context.Context, rideID string) ([]*models.ChatMessage, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, ride_id, sender_role, sender_id, message, created_at
		FROM chat_messages WHERE ride_id = $1 ORDER BY created_at`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.RideID, &m.SenderRole, &m.SenderID, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// WithRideLock serializes on SELECT ... FOR UPDATE. A server-side
// lock_timeout bounds the wait in addition to the context deadline so a
// contended accept fails fast instead of hanging.
func (p *PostgresStore) WithRideLock(ctx context.Context, rideID string, wait time.Duration, fn func(tx RideTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, wait+time.Second)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", wait.Milliseconds())); err != nil {
		return err
	}

	row := tx.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 FOR UPDATE`, rideID)
	r, err := scanRide(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRideNotFound
		}
		return classifyLockError(err)
	}

	if err := fn(&pgRideTx{ctx: ctx, tx: tx, ride: r}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgRideTx struct {
	ctx  context.Context
	tx   *sql.Tx
	ride *models.Ride
}

func (t *pgRideTx) Ride() *models.Ride { return t.ride }

func (t *pgRideTx) UpdateRide(r *models.Ride) error {
	_, err := t.tx.ExecContext(t.ctx, `UPDATE rides SET driver_id=$1, status=$2, payment_ref=$3,
		assigned_time=$4, start_time=$5, end_time=$6 WHERE id=$7`,
		nullString(r.DriverID), string(r.Status), nullString(r.PaymentRef),
		r.AssignedTime, r.StartTime, r.EndTime, r.ID)
	return err
}

func (t *pgRideTx) Offer(driverID string) (*models.Offer, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT id, ride_id, driver_id, status, created_at, expires_at, accepted_at
		FROM ride_offers WHERE ride_id = $1 AND driver_id = $2`, t.ride.ID, driverID)
	o, err := scanOffer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOfferNotFound
	}
	return o, err
}

func (t *pgRideTx) MarkOfferAccepted(driverID string, at time.Time) error {
	res, err := t.tx.ExecContext(t.ctx, `UPDATE ride_offers SET status='accepted', accepted_at=$1
		WHERE ride_id=$2 AND driver_id=$3`, at, t.ride.ID, driverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOfferNotFound
	}
	return nil
}

func (t *pgRideTx) ExpireSiblingOffers(winnerDriverID string) ([]string, error) {
	rows, err := t.tx.QueryContext(t.ctx, `UPDATE ride_offers SET status='expired'
		WHERE ride_id=$1 AND driver_id<>$2 AND status='pending' RETURNING driver_id`, t.ride.ID, winnerDriverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var losers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		losers = append(losers, id)
	}
	return losers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var driverID, pickupAddr, destAddr, paymentRef sql.NullString
	var vehicle, status string
	err := row.Scan(&r.ID, &r.PassengerID, &driverID, &pickupAddr, &r.Pickup.Lat, &r.Pickup.Lon,
		&destAddr, &r.Dest.Lat, &r.Dest.Lon, &r.DistanceKm, &r.Fare, &vehicle, &status,
		&paymentRef, &r.RequestTime, &r.AssignedTime, &r.StartTime, &r.EndTime)
	if err != nil {
		return nil, err
	}
	r.DriverID = driverID.String
	r.PickupAddress = pickupAddr.String
	r.DestAddress = destAddr.String
	r.PaymentRef = paymentRef.String
	r.VehicleType = models.VehicleType(vehicle)
	r.Status = models.RideStatus(status)
	return &r, nil
}

func scanOffer(row rowScanner) (*models.Offer, error) {
	var o models.Offer
	var status string
	if err := row.Scan(&o.ID, &o.RideID, &o.DriverID, &status, &o.CreatedAt, &o.ExpiresAt, &o.AcceptedAt); err != nil {
		return nil, err
	}
	o.Status = models.OfferStatus(status)
	return &o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// classifyLockError maps Postgres lock_timeout (55P03) and context
// expiry onto ErrLockTimeout so callers can treat them as retryable.
func classifyLockError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "55P03" {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}
