package cache

import (
	"context"
	"drt-simulator/internal/domain"
	"drt-simulator/internal/platform/obs"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

// RouteCache memoizes road router geometry in redis, keyed by origin and destination.
type RouteCache struct {
	Cache *gocache.Cache[string]
}

func NewRouteCache(client *redis.Client, ttl time.Duration) *RouteCache {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	return &RouteCache{Cache: gocache.New[string](redisStore)}
}

func routeKey(from, to domain.Coord) string {
	return fmt.Sprintf("drtsim:route:%s:%s", from, to)
}

// Get returns a cached route; misses and decode failures both report false.
func (c *RouteCache) Get(ctx context.Context, from, to domain.Coord) (*domain.Trip, bool) {
	raw, err := c.Cache.Get(ctx, routeKey(from, to))
	if err != nil {
		return nil, false
	}

	var trip domain.Trip
	if err := json.Unmarshal([]byte(raw), &trip); err != nil {
		return nil, false
	}
	return &trip, true
}

func (c *RouteCache) Set(ctx context.Context, from, to domain.Coord, trip *domain.Trip) (err error) {
	defer obs.Time(ctx, "route.cache.Set")(&err)

	payload, err := json.Marshal(trip)
	if err != nil {
		return fmt.Errorf("route cache: marshal: %w", err)
	}
	if err := c.Cache.Set(ctx, routeKey(from, to), string(payload)); err != nil {
		return fmt.Errorf("route cache: set: %w", err)
	}
	return nil
}
