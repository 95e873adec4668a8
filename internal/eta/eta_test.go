package eta

import (
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

type fixedClient struct {
	v   float64
	err error
}

func (f *fixedClient) EstimateSeconds(from, to models.Coord) (float64, error) { return f.v, f.err }

func TestNaiveEstimate(t *testing.T) {
	// one degree of longitude at the equator ~111195 m; at 10 m/s that is ~11119.5 s
	got := EstimateSeconds(models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 0, Lon: 1}, 10)
	if got < 11100 || got > 11140 {
		t.Fatalf("unexpected naive eta: %f", got)
	}
}

func TestEstimatorPrefersClientAndCaches(t *testing.T) {
	c := NewCache(time.Minute)
	e := &Estimator{Client: &fixedClient{v: 42}, Cache: c, DefaultSpeedMps: 10}
	a := models.Coord{Lat: 1, Lon: 1}
	b := models.Coord{Lat: 2, Lon: 2}
	if got := e.PickupSeconds(a, b); got != 42 {
		t.Fatalf("expected client value, got %f", got)
	}
	if v, ok := c.Get(a, b); !ok || v != 42 {
		t.Fatalf("expected cached value, got %f ok=%v", v, ok)
	}
}

func TestEstimatorFallsBackOnClientError(t *testing.T) {
	e := &Estimator{Client: &fixedClient{err: errors.New("down")}, DefaultSpeedMps: 10}
	got := e.PickupSeconds(models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 0, Lon: 1})
	if got < 11100 || got > 11140 {
		t.Fatalf("expected naive fallback, got %f", got)
	}
}
