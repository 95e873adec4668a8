package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// VehicleType restricts which drivers a ride may be offered to.
type VehicleType string

const (
	VehicleBajaj VehicleType = "Bajaj"
	VehicleCar   VehicleType = "Car"
)

// RideStatus values mirror the persisted status column.
type RideStatus string

const (
	StatusRequested      RideStatus = "Requested"
	StatusAssigned       RideStatus = "Assigned"
	StatusDriverArriving RideStatus = "Driver Arriving"
	StatusOnTrip         RideStatus = "On Trip"
	StatusCompleted      RideStatus = "Completed"
	StatusCanceled       RideStatus = "Canceled"
	StatusExpired        RideStatus = "Expired"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferExpired  OfferStatus = "expired"
)

// Driver is the geo-index view of a driver: current position plus the
// attributes nearby search filters on. It is not the full profile.
type Driver struct {
	ID          string      `json:"id"`
	Loc         Coord       `json:"loc"`
	Heading     *float64    `json:"heading,omitempty"`
	VehicleType VehicleType `json:"vehicle_type"`
	Available   bool        `json:"available"`
	Updated     time.Time   `json:"updated"`
}

// DriverPosition is the wire form of a single location update as it
// travels through Kafka. One record per driver, last write wins.
type DriverPosition struct {
	DriverID    string      `json:"driver_id"`
	Lat         float64     `json:"lat"`
	Lon         float64     `json:"lon"`
	Heading     *float64    `json:"heading,omitempty"`
	VehicleType VehicleType `json:"vehicle_type"`
	Available   bool        `json:"available"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Ride struct {
	ID            string      `json:"id"`
	PassengerID   string      `json:"passenger_id"`
	DriverID      string      `json:"driver_id,omitempty"` // empty until assigned
	PickupAddress string      `json:"pickup_address,omitempty"`
	Pickup        Coord       `json:"pickup"`
	DestAddress   string      `json:"dest_address,omitempty"`
	Dest          Coord       `json:"dest"`
	DistanceKm    float64     `json:"distance_km"`
	Fare          float64     `json:"fare"`
	VehicleType   VehicleType `json:"vehicle_type"`
	Status        RideStatus  `json:"status"`
	PaymentRef    string      `json:"-"` // payment hold reference, if any
	RequestTime   time.Time   `json:"request_time"`
	AssignedTime  *time.Time  `json:"assigned_time,omitempty"`
	StartTime     *time.Time  `json:"start_time,omitempty"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
}

// Offer is a time-bounded proposal of one ride to one driver. Offers are
// never deleted; losing and stale offers end up expired.
type Offer struct {
	ID         string      `json:"id"`
	RideID     string      `json:"ride_id"`
	DriverID   string      `json:"driver_id"`
	Status     OfferStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
	AcceptedAt *time.Time  `json:"accepted_at,omitempty"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	RideID     string    `json:"ride_id"`
	SenderRole string    `json:"sender_role"` // passenger or driver
	SenderID   string    `json:"sender_id"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// RideRequest is the inbound shape produced by the passenger-facing layer.
type RideRequest struct {
	PassengerID   string      `json:"passenger_id"`
	PickupAddress string      `json:"pickup_address,omitempty"`
	Pickup        Coord       `json:"pickup"`
	DestAddress   string      `json:"dest_address,omitempty"`
	Dest          Coord       `json:"dest"`
	Fare          float64     `json:"fare"`
	VehicleType   VehicleType `json:"vehicle_type"`
}

// OfferNotice is pushed on a driver topic when a ride is offered.
type OfferNotice struct {
	RideID        string      `json:"ride_id"`
	PickupAddress string      `json:"pickup_address,omitempty"`
	Pickup        Coord       `json:"pickup"`
	DestAddress   string      `json:"dest_address,omitempty"`
	Dest          Coord       `json:"dest"`
	Fare          float64     `json:"fare"`
	VehicleType   VehicleType `json:"vehicle_type"`
	ETASeconds    float64     `json:"eta_seconds,omitempty"`
	ExpiresAt     time.Time   `json:"expires_at"`
}

// AssignmentLost tells a losing driver the ride is gone so the client can
// drop the stale offer without waiting out its TTL.
type AssignmentLost struct {
	RideID string `json:"ride_id"`
}

type StatusUpdate struct {
	RideID   string     `json:"ride_id"`
	Status   RideStatus `json:"status"`
	DriverID string     `json:"driver_id,omitempty"`
}
