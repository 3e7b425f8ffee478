package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache wraps a Redis client with JSON helpers and the key naming
// conventions used across the service.
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

type RedisCacheConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

func DefaultRedisCacheConfig() *RedisCacheConfig {
	return &RedisCacheConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		DB:       0,
		PoolSize: 10,
	}
}

func NewRedisCache(config *RedisCacheConfig) (*RedisCache, error) {
	if config == nil {
		config = DefaultRedisCacheConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ctx:    ctx,
	}, nil
}

func (rc *RedisCache) Get(key string) (string, error) {
	val, err := rc.client.Get(rc.ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

func (rc *RedisCache) Set(key string, value interface{}, ttl time.Duration) error {
	var data string
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
		data = string(jsonData)
	}

	err := rc.client.Set(rc.ctx, key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// GetJSON retrieves and unmarshals JSON data from cache
func (rc *RedisCache) GetJSON(key string, dest interface{}) error {
	val, err := rc.Get(key)
	if err != nil {
		return err
	}

	err = json.Unmarshal([]byte(val), dest)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON for key %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals and stores JSON data in cache with TTL
func (rc *RedisCache) SetJSON(key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return rc.Set(key, jsonData, ttl)
}

// Delete removes a key from cache
func (rc *RedisCache) Delete(key string) error {
	err := rc.client.Del(rc.ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in cache
func (rc *RedisCache) Exists(key string) (bool, error) {
	count, err := rc.client.Exists(rc.ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	return count > 0, nil
}

// Publish sends a message on a pub/sub channel.
func (rc *RedisCache) Publish(channel string, payload []byte) error {
	err := rc.client.Publish(rc.ctx, channel, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// Ping checks if Redis connection is alive
func (rc *RedisCache) Ping() error {
	return rc.client.Ping(rc.ctx).Err()
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// GetClient returns the underlying Redis client for advanced operations
func (rc *RedisCache) GetClient() *redis.Client {
	return rc.client
}

// KeyBuilder provides structured key naming conventions
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with optional prefix
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{prefix: prefix}
}

// DepthKey returns key for the depth snapshot cache.
// Format: depth:{symbol}
func (kb *KeyBuilder) DepthKey(symbol string) string {
	if kb.prefix != "" {
		return fmt.Sprintf("%s:depth:%s", kb.prefix, symbol)
	}
	return fmt.Sprintf("depth:%s", symbol)
}

// TopOfBookKey returns key for the best-bid/ask cache.
// Format: depth:top:{symbol}
func (kb *KeyBuilder) TopOfBookKey(symbol string) string {
	if kb.prefix != "" {
		return fmt.Sprintf("%s:depth:top:%s", kb.prefix, symbol)
	}
	return fmt.Sprintf("depth:top:%s", symbol)
}

// LastTradeKey returns key for the most recent trade cache.
// Format: trade:last:{symbol}
func (kb *KeyBuilder) LastTradeKey(symbol string) string {
	if kb.prefix != "" {
		return fmt.Sprintf("%s:trade:last:%s", kb.prefix, symbol)
	}
	return fmt.Sprintf("trade:last:%s", symbol)
}

// StatsKey returns key for the book statistics cache.
// Format: stats:{symbol}
func (kb *KeyBuilder) StatsKey(symbol string) string {
	if kb.prefix != "" {
		return fmt.Sprintf("%s:stats:%s", kb.prefix, symbol)
	}
	return fmt.Sprintf("stats:%s", symbol)
}

// TradeChannel returns the pub/sub channel for trade broadcasts.
// Format: channel:trades:{symbol}
func (kb *KeyBuilder) TradeChannel(symbol string) string {
	if kb.prefix != "" {
		return fmt.Sprintf("%s:channel:trades:%s", kb.prefix, symbol)
	}
	return fmt.Sprintf("channel:trades:%s", symbol)
}

// DepthChannel returns the pub/sub channel for depth change broadcasts.
// Format: channel:depth:{symbol}
func (kb *KeyBuilder) DepthChannel(symbol string) string {
	if kb.prefix != "" {
		return fmt.Sprintf("%s:channel:depth:%s", kb.prefix, symbol)
	}
	return fmt.Sprintf("channel:depth:%s", symbol)
}
