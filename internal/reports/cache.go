package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/assefaz/stockledger/internal/shared"
)

const dashboardGenerationKey = "reports:dashboard:generation"

// Cache keeps one JSON dashboard per location in Redis. Keys carry a
// generation number; ledger and catalog writes call Bump, which moves every
// location to a fresh key and lets the old ones expire with their TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache builds the dashboard cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Key names the dashboard entry of location for the current generation. A
// missing generation counts as zero.
func (c *Cache) Key(ctx context.Context, location shared.Location) (string, error) {
	if !c.enabled() {
		return "reports:dashboard:" + string(location), nil
	}
	gen, err := c.client.Get(ctx, dashboardGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("reports:dashboard:%s:g%d", location, gen), nil
}

// Dashboard returns the entry under key, building and storing it on a miss.
func (c *Cache) Dashboard(ctx context.Context, key string, build func(context.Context) (Dashboard, error)) (Dashboard, error) {
	var dash Dashboard
	if c.enabled() {
		raw, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if err := json.Unmarshal(raw, &dash); err != nil {
				return Dashboard{}, fmt.Errorf("reports: decode cached dashboard: %w", err)
			}
			return dash, nil
		case !errors.Is(err, redis.Nil):
			return Dashboard{}, err
		}
	}
	dash, err := build(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	if c.enabled() {
		raw, err := json.Marshal(dash)
		if err != nil {
			return Dashboard{}, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return Dashboard{}, err
		}
	}
	return dash, nil
}

// Bump starts a new generation so the next read rebuilds every dashboard.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, dashboardGenerationKey).Err()
}
