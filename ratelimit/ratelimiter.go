package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and debits a bucket atomically on the Redis
// side so concurrent requests from one client never race on the counter.
const tokenBucketScript = `
local key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local refill_interval_ms = tonumber(ARGV[3])
local now_ms = tonumber(ARGV[4])
local cost = tonumber(ARGV[5])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1])
local last_refill_ms = tonumber(bucket[2])

if tokens == nil then
	tokens = max_tokens
	last_refill_ms = now_ms
end

local elapsed_ms = now_ms - last_refill_ms
local intervals_passed = elapsed_ms / refill_interval_ms
tokens = math.min(max_tokens, tokens + intervals_passed * refill_rate)

local allowed = tokens >= cost
if allowed then
	tokens = tokens - cost
end

redis.call('HMSET', key, 'tokens', tokens, 'last_refill', now_ms)
redis.call('EXPIRE', key, 3600)

return {allowed and 1 or 0, math.floor(tokens), tokens}
`

// Config configures a TokenBucketLimiter.
type Config struct {
	MaxTokens      int
	RefillRate     int
	RefillInterval time.Duration
	KeyPrefix      string

	// Keys that bypass rate limiting entirely.
	WhitelistedKeys []string

	// When Redis is unavailable, halve the limits instead of applying
	// them in full per instance.
	ConservativeFallback bool
}

// DefaultConfig returns the limits applied when the caller supplies none.
func DefaultConfig() Config {
	return Config{
		MaxTokens:      100,
		RefillRate:     10,
		RefillInterval: time.Second,
		KeyPrefix:      "matching:ratelimit:",
	}
}

// TokenBucketLimiter enforces a per-client token bucket. State lives in
// Redis when available so all instances share one budget per client; it
// falls back to per-instance in-memory buckets when Redis is down.
type TokenBucketLimiter struct {
	redisClient *redis.Client
	local       *localStore

	// Flipped off by demoteToLocal while Allow reads it concurrently,
	// so it must be atomic.
	useRedis atomic.Bool

	maxTokens      int
	refillRate     int
	refillInterval time.Duration
	keyPrefix      string

	mu                sync.RWMutex
	whitelist         map[string]bool
	originalMaxTokens int
}

// Result describes the outcome of a single rate limit check.
type Result struct {
	Allowed       bool
	Remaining     int
	RetryAfter    time.Duration
	ResetAt       time.Time
	CurrentTokens float64
}

// NewTokenBucketLimiter creates a limiter. Passing a nil Redis client, or
// one that fails an initial ping, selects the in-memory fallback.
func NewTokenBucketLimiter(redisClient *redis.Client, config Config) *TokenBucketLimiter {
	defaults := DefaultConfig()
	if config.MaxTokens == 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.RefillRate == 0 {
		config.RefillRate = defaults.RefillRate
	}
	if config.RefillInterval == 0 {
		config.RefillInterval = defaults.RefillInterval
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}

	limiter := &TokenBucketLimiter{
		redisClient:       redisClient,
		maxTokens:         config.MaxTokens,
		refillRate:        config.RefillRate,
		refillInterval:    config.RefillInterval,
		keyPrefix:         config.KeyPrefix,
		whitelist:         make(map[string]bool),
		originalMaxTokens: config.MaxTokens,
	}
	for _, key := range config.WhitelistedKeys {
		limiter.whitelist[key] = true
	}

	// The local store always exists so a mid-flight demotion from Redis
	// never races its creation.
	limiter.local = newLocalStore()

	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err == nil {
			limiter.useRedis.Store(true)
		}
	}

	if !limiter.useRedis.Load() && config.ConservativeFallback {
		limiter.maxTokens = max(config.MaxTokens/2, 10)
		limiter.refillRate = max(config.RefillRate/2, 1)
	}

	return limiter
}

// Allow checks whether one request from clientKey may proceed.
func (tbl *TokenBucketLimiter) Allow(ctx context.Context, clientKey string) (*Result, error) {
	tbl.mu.RLock()
	whitelisted := tbl.whitelist[clientKey]
	tbl.mu.RUnlock()

	if whitelisted {
		return &Result{
			Allowed:       true,
			Remaining:     tbl.originalMaxTokens,
			CurrentTokens: float64(tbl.originalMaxTokens),
		}, nil
	}

	if tbl.useRedis.Load() {
		return tbl.allowRedis(ctx, clientKey)
	}
	return tbl.allowLocal(clientKey), nil
}

// AddWhitelistedKey exempts a client key from rate limiting.
func (tbl *TokenBucketLimiter) AddWhitelistedKey(clientKey string) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	tbl.whitelist[clientKey] = true
}

// RemoveWhitelistedKey re-applies rate limiting to a client key.
func (tbl *TokenBucketLimiter) RemoveWhitelistedKey(clientKey string) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	delete(tbl.whitelist, clientKey)
}

// IsWhitelisted reports whether a client key bypasses rate limiting.
func (tbl *TokenBucketLimiter) IsWhitelisted(clientKey string) bool {
	tbl.mu.RLock()
	defer tbl.mu.RUnlock()
	return tbl.whitelist[clientKey]
}

func (tbl *TokenBucketLimiter) allowRedis(ctx context.Context, clientKey string) (*Result, error) {
	now := time.Now()
	raw, err := tbl.redisClient.Eval(ctx, tokenBucketScript,
		[]string{tbl.keyPrefix + clientKey},
		tbl.maxTokens,
		tbl.refillRate,
		tbl.refillInterval.Milliseconds(),
		now.UnixMilli(),
		1,
	).Result()
	if err != nil {
		tbl.demoteToLocal()
		return tbl.allowLocal(clientKey), nil
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		tbl.demoteToLocal()
		return tbl.allowLocal(clientKey), nil
	}

	allowed := values[0].(int64) == 1
	remaining := int(values[1].(int64))

	var currentTokens float64
	switch v := values[2].(type) {
	case float64:
		currentTokens = v
	case int64:
		currentTokens = float64(v)
	default:
		tbl.demoteToLocal()
		return tbl.allowLocal(clientKey), nil
	}

	result := &Result{
		Allowed:       allowed,
		Remaining:     remaining,
		CurrentTokens: currentTokens,
	}
	if !allowed {
		result.RetryAfter = tbl.retryAfter(currentTokens)
		result.ResetAt = now.Add(result.RetryAfter)
	}
	return result, nil
}

func (tbl *TokenBucketLimiter) demoteToLocal() {
	tbl.useRedis.Store(false)
}

func (tbl *TokenBucketLimiter) allowLocal(clientKey string) *Result {
	bucket := tbl.local.getOrCreate(clientKey, tbl.maxTokens, tbl.refillRate, tbl.refillInterval)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(bucket.lastRefill)
	bucket.tokens = min(float64(bucket.maxTokens), bucket.tokens+elapsed.Seconds()*bucket.refillPerSecond)
	bucket.lastRefill = now

	result := &Result{
		Allowed:       bucket.tokens >= 1.0,
		CurrentTokens: bucket.tokens,
	}
	if result.Allowed {
		bucket.tokens -= 1.0
		result.Remaining = int(bucket.tokens)
	} else {
		result.Remaining = int(bucket.tokens)
		result.RetryAfter = tbl.retryAfter(bucket.tokens)
		result.ResetAt = now.Add(result.RetryAfter)
	}
	return result
}

// retryAfter estimates the wait until one token becomes available.
func (tbl *TokenBucketLimiter) retryAfter(currentTokens float64) time.Duration {
	tokensPerSecond := float64(tbl.refillRate) / tbl.refillInterval.Seconds()
	secondsToWait := (1.0 - currentTokens) / tokensPerSecond
	return time.Duration(secondsToWait * float64(time.Second))
}

// CurrentTokens reports the token count for a client without spending one.
func (tbl *TokenBucketLimiter) CurrentTokens(ctx context.Context, clientKey string) (float64, error) {
	if tbl.useRedis.Load() {
		tokens, err := tbl.redisClient.HGet(ctx, tbl.keyPrefix+clientKey, "tokens").Float64()
		if err != nil {
			// Absent key means an untouched, full bucket.
			return float64(tbl.maxTokens), nil
		}
		return tokens, nil
	}

	bucket := tbl.local.get(clientKey)
	if bucket == nil {
		return float64(tbl.maxTokens), nil
	}
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	return bucket.tokens, nil
}

// bucket is one client's in-memory token bucket. The mutex lives on the
// bucket itself so every caller serializes on the same lock.
type bucket struct {
	mu              sync.Mutex
	tokens          float64
	lastRefill      time.Time
	maxTokens       int
	refillPerSecond float64
}

type localStore struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

func newLocalStore() *localStore {
	store := &localStore{buckets: make(map[string]*bucket)}
	go store.cleanupLoop()
	return store
}

func (ls *localStore) getOrCreate(clientKey string, maxTokens, refillRate int, refillInterval time.Duration) *bucket {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	b, ok := ls.buckets[clientKey]
	if !ok {
		b = &bucket{
			tokens:          float64(maxTokens),
			lastRefill:      time.Now(),
			maxTokens:       maxTokens,
			refillPerSecond: float64(refillRate) / refillInterval.Seconds(),
		}
		ls.buckets[clientKey] = b
	}
	return b
}

func (ls *localStore) get(clientKey string) *bucket {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.buckets[clientKey]
}

func (ls *localStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		ls.mu.Lock()
		for key, b := range ls.buckets {
			b.mu.Lock()
			idle := now.Sub(b.lastRefill) > time.Hour
			b.mu.Unlock()
			if idle {
				delete(ls.buckets, key)
			}
		}
		ls.mu.Unlock()
	}
}
