package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisDirectory stores driver positions in a Redis GEO set plus a
// metadata hash per driver and a plain set of online ids. Both the API
// server and the location consumer write through this schema.
type RedisDirectory struct {
	client *redis.Client
	geoKey string
}

func NewRedisDirectory(addr, password, geoKey string) *RedisDirectory {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisDirectory{client: c, geoKey: geoKey}
}

// NewRedisDirectoryFromClient is used by the consumer which manages
// its own client lifecycle.
func NewRedisDirectoryFromClient(c *redis.Client, geoKey string) *RedisDirectory {
	return &RedisDirectory{client: c, geoKey: geoKey}
}

func (r *RedisDirectory) onlineKey() string { return r.geoKey + ":online" }

func metaKey(driverID string) string { return "driver:meta:" + driverID }

func (r *RedisDirectory) Upsert(ctx context.Context, d models.Driver) error {
	if d.Loc != nil {
		if _, err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
			Longitude: d.Loc.Lng, Latitude: d.Loc.Lat, Name: d.ID,
		}).Result(); err != nil {
			return err
		}
	}
	meta := map[string]interface{}{
		"mobile":          d.Mobile,
		"vehicle_code":    d.VehicleCode,
		"rating":          strconv.FormatFloat(d.Rating, 'f', -1, 64),
		"completed_rides": strconv.Itoa(d.CompletedRides),
		"online":          strconv.FormatBool(d.Online),
		"available":       strconv.FormatBool(d.Available),
		"updated":         time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.client.HSet(ctx, metaKey(d.ID), meta).Err(); err != nil {
		return err
	}
	if d.Online {
		return r.client.SAdd(ctx, r.onlineKey(), d.ID).Err()
	}
	return r.client.SRem(ctx, r.onlineKey(), d.ID).Err()
}

func (r *RedisDirectory) SetAvailable(ctx context.Context, driverID string, available bool) error {
	return r.client.HSet(ctx, metaKey(driverID), "available", strconv.FormatBool(available)).Err()
}

func (r *RedisDirectory) RecordCompletion(ctx context.Context, driverID string, rating float64) error {
	key := metaKey(driverID)
	m, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return err
	}
	count, _ := strconv.Atoi(m["completed_rides"])
	avg, _ := strconv.ParseFloat(m["rating"], 64)
	if rating > 0 {
		avg = FoldRating(avg, count, rating)
	}
	return r.client.HSet(ctx, key, map[string]interface{}{
		"rating":          strconv.FormatFloat(avg, 'f', -1, 64),
		"completed_rides": strconv.Itoa(count + 1),
	}).Err()
}

func (r *RedisDirectory) ListOnlineDrivers(ctx context.Context) ([]models.Driver, error) {
	ids, err := r.client.SMembers(ctx, r.onlineKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Driver, 0, len(ids))
	for _, id := range ids {
		d := models.Driver{ID: id}
		if m, err := r.client.HGetAll(ctx, metaKey(id)).Result(); err == nil {
			d.Mobile = m["mobile"]
			d.VehicleCode = m["vehicle_code"]
			if v, err := strconv.ParseFloat(m["rating"], 64); err == nil {
				d.Rating = v
			}
			if v, err := strconv.Atoi(m["completed_rides"]); err == nil {
				d.CompletedRides = v
			}
			d.Online = m["online"] == "true"
			d.Available = m["available"] == "true"
			if t, err := time.Parse(time.RFC3339, m["updated"]); err == nil {
				d.Updated = t
			}
		}
		if !d.Online {
			// meta went offline without the set catching up; self-heal
			_ = r.client.SRem(ctx, r.onlineKey(), id).Err()
			continue
		}
		if pos, err := r.client.GeoPos(ctx, r.geoKey, id).Result(); err == nil && len(pos) == 1 && pos[0] != nil {
			d.Loc = &models.Coord{Lat: pos[0].Latitude, Lng: pos[0].Longitude}
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *RedisDirectory) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisDirectory) Close() error { return r.client.Close() }
