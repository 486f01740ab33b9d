package server

import (
	"fmt"
	"sync"
	"time"
)

type RateLimitConfig struct {
	GlobalRPS   float64
	GlobalBurst int
	// SlotLimit caps upload-slot requests per client IP inside SlotWindow.
	// Zero disables the per-IP limit.
	SlotLimit     int
	SlotWindow    time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

type rateLimiter struct {
	global      *tokenBucket
	slotLimit   int
	slotWindow  time.Duration
	slotMu      sync.Mutex
	slotBuckets map[string]*ipLimiter
	store       tokenStore
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

// tokenStore shares per-IP counters across replicas. The in-process buckets
// are the fallback when no store is configured.
type tokenStore interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		slotLimit:   cfg.SlotLimit,
		slotWindow:  cfg.SlotWindow,
		slotBuckets: make(map[string]*ipLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.slotLimit <= 0 {
		rl.slotLimit = 0
	}
	if rl.slotWindow <= 0 {
		rl.slotWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.slotLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

func (r *rateLimiter) AllowSlot(key string) (bool, time.Duration, error) {
	if r == nil || r.slotLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		allowed, retryAfter, err := r.store.Allow(fmt.Sprintf("chapelcast:slots:%s", key), r.slotLimit, r.slotWindow)
		return allowed, retryAfter, err
	}
	if key == "" {
		key = "unknown"
	}
	r.slotMu.Lock()
	bucket, exists := r.slotBuckets[key]
	if !exists {
		rate := float64(r.slotLimit) / r.slotWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.slotWindow.Seconds()
		}
		bucket = &ipLimiter{bucket: newTokenBucket(rate, r.slotLimit)}
		r.slotBuckets[key] = bucket
	}
	bucket.lastSeen = time.Now()
	r.cleanupLocked()
	r.slotMu.Unlock()

	if bucket.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.slotBuckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.slotWindow)
	for key, bucket := range r.slotBuckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(r.slotBuckets, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
