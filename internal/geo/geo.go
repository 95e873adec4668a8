package geo

import (
	"math"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Geo is the driver proximity index used by the dispatcher. An empty
// Nearby result means no eligible driver, not a failure.
type Geo interface {
	// Upsert records the latest position for a driver. Last write wins,
	// one entry per driver. For a driver already in the index the
	// availability flag is preserved; only SetAvailable changes it.
	Upsert(d models.Driver)
	// Nearby returns up to limit available drivers within radiusKm of the
	// point, closest first. An empty vehicle filter matches any type.
	Nearby(lat, lon, radiusKm float64, limit int, vehicle models.VehicleType) []models.Driver
	// SetAvailable flips availability without touching position.
	SetAvailable(driverID string, available bool)
}

type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) Upsert(d models.Driver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// availability is owned by SetAvailable; a position ping must not
	// flip a busy driver back into the pool
	if prev, ok := g.drivers[d.ID]; ok {
		d.Available = prev.Available
	}
	d.Updated = time.Now()
	g.drivers[d.ID] = d
}

func (g *Index) SetAvailable(driverID string, available bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.drivers[driverID]
	if !ok {
		return
	}
	d.Available = available
	g.drivers[driverID] = d
}

// naive scan; in prod use geo-hash or H3
func (g *Index) Nearby(lat, lon, radiusKm float64, limit int, vehicle models.VehicleType) []models.Driver {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Driver
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, d := range g.drivers {
		if !d.Available {
			continue
		}
		if vehicle != "" && d.VehicleType != vehicle {
			continue
		}
		dist := HaversineKm(lat, lon, d.Loc.Lat, d.Loc.Lon)
		if dist > radiusKm {
			continue
		}
		arr = append(arr, pair{d, dist})
	}
	// partial selection sort for top-N
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Driver, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].d)
	}
	return out
}

// HaversineKm is the great-circle distance in kilometers on a mean Earth
// radius of 6371.0 km. No projection correction; fine at city scale.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
