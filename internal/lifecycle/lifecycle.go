// Package lifecycle is the authoritative state machine for a ride's status.
// Every status mutation in the system goes through Next; there are no
// silent fallbacks for transitions the table does not list.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/example/ride-dispatch/internal/models"
)

type Event string

const (
	EventRequest Event = "request"
	EventAssign  Event = "assign"
	EventArrive  Event = "arrive"
	EventStart   Event = "start"
	EventEnd     Event = "end"
	EventCancel  Event = "cancel"
	EventExpire  Event = "expire"
)

// ErrInvalidTransition is returned when an event is not valid from the
// ride's current status. It is reported, never retried.
var ErrInvalidTransition = errors.New("invalid ride status transition")

// transitions maps event -> allowed prior status -> next status. The
// initial transition uses the empty status as its prior state.
var transitions = map[Event]map[models.RideStatus]models.RideStatus{
	EventRequest: {
		"": models.StatusRequested,
	},
	EventAssign: {
		models.StatusRequested: models.StatusAssigned,
	},
	EventArrive: {
		models.StatusAssigned: models.StatusDriverArriving,
	},
	EventStart: {
		models.StatusAssigned:       models.StatusOnTrip,
		models.StatusDriverArriving: models.StatusOnTrip,
	},
	EventEnd: {
		models.StatusOnTrip: models.StatusCompleted,
	},
	EventCancel: {
		models.StatusRequested:      models.StatusCanceled,
		models.StatusAssigned:       models.StatusCanceled,
		models.StatusDriverArriving: models.StatusCanceled,
	},
	EventExpire: {
		models.StatusRequested: models.StatusExpired,
	},
}

// Next returns the status that results from applying ev to current, or
// ErrInvalidTransition (wrapped with context) when the table disallows it.
func Next(current models.RideStatus, ev Event) (models.RideStatus, error) {
	allowed, ok := transitions[ev]
	if !ok {
		return "", fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
	}
	next, ok := allowed[current]
	if !ok {
		return "", fmt.Errorf("%w: %s from %q", ErrInvalidTransition, ev, current)
	}
	return next, nil
}

// Assignable reports whether a ride in the given status may still be
// claimed by a driver.
func Assignable(s models.RideStatus) bool {
	_, ok := transitions[EventAssign][s]
	return ok
}

// Terminal reports whether the status can never change again.
func Terminal(s models.RideStatus) bool {
	switch s {
	case models.StatusCompleted, models.StatusCanceled, models.StatusExpired:
		return true
	}
	return false
}
