// Package realtime is the pub/sub transport used to push offers,
// assignment outcomes and ride chat to connected clients. Delivery is
// at-most-once and best-effort; engine correctness never depends on it.
package realtime

// Event names carried in Message.Event.
const (
	EventRideOffer    = "ride_offer"
	EventOfferTaken   = "offer_taken"
	EventAcceptResult = "accept_offer_result"
	EventRideStatus   = "ride_status"
	EventChatMessage  = "chat_message"
)

type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Subscriber receives messages for topics it is subscribed to. Deliver
// must be safe for concurrent use.
type Subscriber interface {
	Deliver(topic string, msg Message) error
}

// Channel is an abstract per-entity topic bus.
type Channel interface {
	Subscribe(topic string, s Subscriber)
	Unsubscribe(topic string, s Subscriber)
	// Publish fans the message out to current subscribers. Individual
	// delivery failures are logged and swallowed.
	Publish(topic string, msg Message) error
}

func DriverTopic(driverID string) string { return "driver:" + driverID }

func RideTopic(rideID string) string { return "ride:" + rideID }
