package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/portfolio-engine/internal/config"
	"github.com/portfolio-engine/internal/types"
)

// ErrPriceNotCached is returned when no cached unit value exists for an asset.
var ErrPriceNotCached = errors.New("unit value not cached")

// RedisCache wraps the Redis client used for short-lived oracle price caching
type RedisCache struct {
	client   *redis.Client
	priceTTL time.Duration
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, priceTTL: cfg.PriceTTL}, nil
}

// NewRedisCacheFromClient wraps an existing client. Used by tests with miniredis.
func NewRedisCacheFromClient(client *redis.Client, priceTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, priceTTL: priceTTL}
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func priceKey(assetID types.AssetID) string {
	return fmt.Sprintf("price:%s", assetID)
}

// SetUnitValue caches the oracle unit value for an asset with the configured TTL
func (r *RedisCache) SetUnitValue(ctx context.Context, assetID types.AssetID, value decimal.Decimal) error {
	return r.client.Set(ctx, priceKey(assetID), value.String(), r.priceTTL).Err()
}

// GetUnitValue returns the cached unit value for an asset, or ErrPriceNotCached
// when the entry is missing or expired
func (r *RedisCache) GetUnitValue(ctx context.Context, assetID types.AssetID) (decimal.Decimal, error) {
	raw, err := r.client.Get(ctx, priceKey(assetID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, ErrPriceNotCached
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read cached unit value: %w", err)
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt cached unit value for %s: %w", assetID, err)
	}
	return value, nil
}

// InvalidateUnitValue drops a cached price, forcing the next read to hit the oracle
func (r *RedisCache) InvalidateUnitValue(ctx context.Context, assetID types.AssetID) error {
	return r.client.Del(ctx, priceKey(assetID)).Err()
}
