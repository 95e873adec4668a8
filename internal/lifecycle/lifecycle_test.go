package lifecycle

import (
	"errors"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestHappyPath(t *testing.T) {
	steps := []struct {
		ev   Event
		want models.RideStatus
	}{
		{EventRequest, models.StatusRequested},
		{EventAssign, models.StatusAssigned},
		{EventArrive, models.StatusDriverArriving},
		{EventStart, models.StatusOnTrip},
		{EventEnd, models.StatusCompleted},
	}
	var cur models.RideStatus
	for _, s := range steps {
		next, err := Next(cur, s.ev)
		if err != nil {
			t.Fatalf("%s from %q: %v", s.ev, cur, err)
		}
		if next != s.want {
			t.Fatalf("%s: expected %s, got %s", s.ev, s.want, next)
		}
		cur = next
	}
}

func TestStartDirectlyFromAssigned(t *testing.T) {
	next, err := Next(models.StatusAssigned, EventStart)
	if err != nil || next != models.StatusOnTrip {
		t.Fatalf("expected On Trip, got %s err=%v", next, err)
	}
}

func TestCancelReachability(t *testing.T) {
	for _, s := range []models.RideStatus{models.StatusRequested, models.StatusAssigned, models.StatusDriverArriving} {
		if _, err := Next(s, EventCancel); err != nil {
			t.Fatalf("cancel from %s should be allowed: %v", s, err)
		}
	}
	for _, s := range []models.RideStatus{models.StatusOnTrip, models.StatusCompleted, models.StatusCanceled} {
		if _, err := Next(s, EventCancel); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("cancel from %s should be rejected, got %v", s, err)
		}
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	cases := []struct {
		from models.RideStatus
		ev   Event
	}{
		{models.StatusRequested, EventStart},
		{models.StatusRequested, EventEnd},
		{models.StatusRequested, EventArrive},
		{models.StatusAssigned, EventAssign},
		{models.StatusCompleted, EventStart},
		{models.StatusCanceled, EventAssign},
		{models.StatusOnTrip, EventExpire},
	}
	for _, c := range cases {
		if _, err := Next(c.from, c.ev); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s from %q: expected ErrInvalidTransition, got %v", c.ev, c.from, err)
		}
	}
}

func TestAssignable(t *testing.T) {
	if !Assignable(models.StatusRequested) {
		t.Fatal("Requested should be assignable")
	}
	for _, s := range []models.RideStatus{models.StatusAssigned, models.StatusOnTrip, models.StatusCanceled, models.StatusCompleted} {
		if Assignable(s) {
			t.Fatalf("%s should not be assignable", s)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []models.RideStatus{models.StatusCompleted, models.StatusCanceled, models.StatusExpired} {
		if !Terminal(s) {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if Terminal(models.StatusOnTrip) {
		t.Fatal("On Trip is not terminal")
	}
}
