// Package cache keeps the category and suburb facets in Redis so that page
// renders do not hit Postgres for them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/kidssmart/internal/store"
)

// Key names under which facets are stored.
const (
	KeyPrefix     = "kidssmart:facets:"
	CategoriesKey = KeyPrefix + "categories"
	SuburbsKey    = KeyPrefix + "suburbs"
)

// DefaultTTL applies when Config.TTL is zero.
const DefaultTTL = 10 * time.Minute

// ErrEmptyAddress is returned when Redis is requested without an address.
var ErrEmptyAddress = errors.New("redis address is required")

const connectionTimeout = 5 * time.Second

// Cache stores string lists.
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, values []string) error
	Invalidate(ctx context.Context) error
}

// Config holds Redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Redis is a Cache backed by go-redis.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis wraps client; ttl <= 0 uses DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Get returns the cached list and whether it was present.
func (r *Redis) Get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return values, true, nil
}

// Set stores values with the configured TTL.
func (r *Redis) Set(ctx context.Context, key string, values []string) error {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes every key under KeyPrefix.
func (r *Redis) Invalidate(ctx context.Context) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan facets: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del facets: %w", err)
	}
	return nil
}

// Noop never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) ([]string, bool, error) { return nil, false, nil }

// Set discards values.
func (Noop) Set(context.Context, string, []string) error { return nil }

// Invalidate does nothing.
func (Noop) Invalidate(context.Context) error { return nil }

// FacetStore serves Categories and Suburbs from the cache and delegates the rest.
// Cache failures fall through to the underlying store.
type FacetStore struct {
	store.ActivityStore
	cache  Cache
	logger *zap.Logger
}

// NewFacetStore decorates inner.
func NewFacetStore(inner store.ActivityStore, c Cache, logger *zap.Logger) *FacetStore {
	if c == nil {
		c = Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacetStore{ActivityStore: inner, cache: c, logger: logger}
}

// Categories implements store.ActivityStore.
func (f *FacetStore) Categories(ctx context.Context) ([]string, error) {
	return f.cached(ctx, CategoriesKey, f.ActivityStore.Categories)
}

// Suburbs implements store.ActivityStore.
func (f *FacetStore) Suburbs(ctx context.Context) ([]string, error) {
	return f.cached(ctx, SuburbsKey, f.ActivityStore.Suburbs)
}

// SetApproved changes what the facets contain, so it clears them.
func (f *FacetStore) SetApproved(ctx context.Context, id int64, approved bool) error {
	if err := f.ActivityStore.SetApproved(ctx, id, approved); err != nil {
		return err
	}
	f.invalidateQuietly(ctx)
	return nil
}

// DeleteActivity clears the facets after a delete.
func (f *FacetStore) DeleteActivity(ctx context.Context, id int64) error {
	if err := f.ActivityStore.DeleteActivity(ctx, id); err != nil {
		return err
	}
	f.invalidateQuietly(ctx)
	return nil
}

// Invalidate clears the cached facets.
func (f *FacetStore) Invalidate(ctx context.Context) error {
	return f.cache.Invalidate(ctx)
}

func (f *FacetStore) invalidateQuietly(ctx context.Context) {
	if err := f.cache.Invalidate(ctx); err != nil {
		f.logger.Warn("facet cache invalidation failed", zap.Error(err))
	}
}

func (f *FacetStore) cached(ctx context.Context, key string, load func(context.Context) ([]string, error)) ([]string, error) {
	values, ok, err := f.cache.Get(ctx, key)
	if err != nil {
		f.logger.Warn("facet cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		return values, nil
	}
	values, err = load(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.cache.Set(ctx, key, values); err != nil {
		f.logger.Warn("facet cache write failed", zap.String("key", key), zap.Error(err))
	}
	return values, nil
}
