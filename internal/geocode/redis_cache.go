package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix  = "epoints:geocode:"
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// RedisCache shares geocode responses between machines. Values are the JSON
// encoding of the Location, "null" for an empty response.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to addr and validates the connection with PING.
func NewRedisCache(ctx context.Context, addr, password string) (*RedisCache, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}

	return &RedisCache{client: client, prefix: defaultRedisPrefix}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: defaultRedisPrefix}
}

func (c *RedisCache) key(p Point) string {
	return c.prefix + p.String()
}

// Lookup implements Cache.
func (c *RedisCache) Lookup(ctx context.Context, p Point) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(p)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis: get %s: %w", p, err)
	}

	var loc *Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return Entry{}, false, fmt.Errorf("redis: decode %s: %w", p, err)
	}
	return Entry{Location: loc}, true, nil
}

// Store implements Cache. Entries never expire; coordinates do not move.
func (c *RedisCache) Store(ctx context.Context, p Point, loc *Location) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", p, err)
	}
	if err := c.client.Set(ctx, c.key(p), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", p, err)
	}
	return nil
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Tiered reads from the first cache that has the point and writes to all of
// them, so a shared redis can warm a local file.
type Tiered []Cache

// Lookup implements Cache.
func (t Tiered) Lookup(ctx context.Context, p Point) (Entry, bool, error) {
	var firstErr error
	for _, c := range t {
		e, ok, err := c.Lookup(ctx, p)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return e, true, nil
		}
	}
	return Entry{}, false, firstErr
}

// Store implements Cache.
func (t Tiered) Store(ctx context.Context, p Point, loc *Location) error {
	var errs []error
	for _, c := range t {
		if err := c.Store(ctx, p, loc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
