package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisGeo implements Geo on Redis GEO commands with a per-driver meta
// hash for the attributes GEOADD cannot hold.
type RedisGeo struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key, ctx: context.Background()}
}

// NewRedisGeoFromClient shares an existing client, e.g. with the pub/sub bridge.
func NewRedisGeoFromClient(c *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: c, key: key, ctx: context.Background()}
}

func (r *RedisGeo) Upsert(d models.Driver) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lon, Latitude: d.Loc.Lat, Name: d.ID}).Result()
	meta := map[string]interface{}{
		"vehicle_type": string(d.VehicleType),
		"updated":      time.Now().Format(time.RFC3339),
	}
	if d.Heading != nil {
		meta["heading"] = strconv.FormatFloat(*d.Heading, 'f', -1, 64)
	}
	_ = r.client.HSet(r.ctx, metaKey(d.ID), meta).Err()
	// seed availability only for drivers the meta hash has never seen;
	// afterwards SetAvailable is the sole writer of this field
	_ = r.client.HSetNX(r.ctx, metaKey(d.ID), "available", strconv.FormatBool(d.Available)).Err()
}

func (r *RedisGeo) SetAvailable(driverID string, available bool) {
	_ = r.client.HSet(r.ctx, metaKey(driverID), "available", strconv.FormatBool(available)).Err()
}

func (r *RedisGeo) Nearby(lat, lon, radiusKm float64, limit int, vehicle models.VehicleType) []models.Driver {
	// over-fetch so meta filtering can still fill the limit
	count := limit * 3
	res, err := r.client.GeoRadius(r.ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusKm, Unit: "km", WithCoord: true, WithDist: true, Count: count, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Driver, 0, limit)
	for _, g := range res {
		if len(out) >= limit {
			break
		}
		d := models.Driver{ID: g.Name}
		d.Loc.Lat = g.Latitude
		d.Loc.Lon = g.Longitude
		m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result()
		if err != nil {
			continue
		}
		d.Available = m["available"] == "true"
		d.VehicleType = models.VehicleType(m["vehicle_type"])
		if v, ok := m["heading"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				d.Heading = &f
			}
		}
		if t, err := time.Parse(time.RFC3339, m["updated"]); err == nil {
			d.Updated = t
		}
		if !d.Available {
			continue
		}
		if vehicle != "" && d.VehicleType != vehicle {
			continue
		}
		out = append(out, d)
	}
	return out
}

func metaKey(id string) string { return "driver:meta:" + id }
