// Package valkey provides a Valkey-backed cache driver so rate-limit
// and lockout state can be shared between client instances.
package valkey

import (
	"context"
	"fmt"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/flowcraft-app/flowcraft-go/cache"
)

func init() {
	cache.RegisterDriver("valkey", func(config map[string]any) (cache.CacheWithCounter, error) {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["addr"].(string); ok && v != "" {
				cfg.Addr = v
			}
			if v, ok := config["password"].(string); ok {
				cfg.Password = v
			}
			if v, ok := config["db"].(int); ok {
				cfg.DB = v
			}
		}
		return New(cfg)
	})
}

// Config holds Valkey connection configuration.
type Config struct {
	Addr     string // host:port
	Password string // optional password
	DB       int    // database number

	// DefaultTTL applies when callers pass a zero TTL.
	DefaultTTL time.Duration
}

// DefaultConfig returns sensible defaults for a local Valkey.
func DefaultConfig() *Config {
	return &Config{
		Addr:       "localhost:6379",
		DefaultTTL: 15 * time.Minute,
	}
}

// Cache is a Valkey-backed cache.
type Cache struct {
	client valkeygo.Client
	cfg    *Config
}

// New connects to Valkey and returns the cache.
func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
		// Client-side caching needs invalidation push support; keep it off
		// so the driver also works against minimal RESP servers.
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Addr, err)
	}

	return &Cache{client: client, cfg: cfg}, nil
}

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return c.cfg.DefaultTTL
	}
	return ttl
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	b, err := resp.AsBytes()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := c.client.B().Set().Key(key).Value(valkeygo.BinaryString(value)).
		Px(c.ttl(ttl)).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Increment adds delta to the counter and returns the new value.
// The TTL is armed only when the key has none, so the window does not
// slide on every attempt.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	n, err := c.client.Do(ctx, c.client.B().Incrby().Key(key).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, err
	}

	expire := c.client.B().Pexpire().Key(key).Milliseconds(c.ttl(ttl).Milliseconds()).Nx().Build()
	if err := c.client.Do(ctx, expire).Error(); err != nil {
		return n, err
	}
	return n, nil
}

// GetCount returns the current counter value, or 0 when absent.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsInt64()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Reset sets the counter to 0.
func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}
