package cache

import (
	"context"
	"time"

	"ln-gateway/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Cache wraps a Redis client. A single Cache is constructed at startup and
// shared; go-redis manages the underlying connection pool.
type Cache struct {
	client *redis.Client
}

func New(cfg Config) (*Cache, error) {
	opts := redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	rdb := redis.NewClient(&opts)

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	logger.Info("Connected to Redis successfully", zap.String("host", cfg.Host))
	return &Cache{client: rdb}, nil
}

// Client exposes the underlying redis client for components that need
// redis features beyond the key/value helpers (e.g. streams).
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Get returns the value for key, or "" when the key is missing or expired.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	} else if err != nil {
		logger.Error("Failed to get key from Redis", zap.String("key", key), zap.Error(err))
		return "", err
	}
	return val, nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	err := c.client.Set(ctx, key, value, expiration).Err()
	if err != nil {
		logger.Error("Failed to set key in Redis", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) (int64, error) {
	res, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		logger.Error("Failed to delete keys from Redis", zap.Strings("keys", keys), zap.Error(err))
		return 0, err
	}
	return res, nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	res, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		logger.Error("Failed to check existence of key in Redis", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return res > 0, nil
}

// HGet returns the hash field value, or "" when the key or field is missing.
func (c *Cache) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := c.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", nil
	} else if err != nil {
		logger.Error("Failed to get hash field from Redis", zap.String("key", key), zap.String("field", field), zap.Error(err))
		return "", err
	}
	return val, nil
}

func (c *Cache) HSet(ctx context.Context, key string, values ...interface{}) error {
	err := c.client.HSet(ctx, key, values...).Err()
	if err != nil {
		logger.Error("Failed to set hash field in Redis", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Ping tests the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
