// Package middleware carries the HTTP middleware of the draft service:
// bucketed rate limiting and owner authentication.
package middleware

import (
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter enforces sliding-window rate limits over named buckets. The
// draft core uses two buckets: "action" keyed by "<sessionKey>:<tokenOrAddr>"
// for player writes, and "owner" keyed by owner id for session and preset
// mutations. Stream endpoints are never limited.
type RateLimiter struct {
	mu      sync.RWMutex
	windows map[string]*rateLimitWindow
	buckets map[string]BucketConfig
	logger  *log.Logger
}

// BucketConfig defines the thresholds of one bucket.
type BucketConfig struct {
	MaxPerMinute int
	Burst        int // temporary allowance above the limit
}

type rateLimitWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter with the given buckets.
func NewRateLimiter(buckets map[string]BucketConfig) *RateLimiter {
	normalized := make(map[string]BucketConfig, len(buckets))
	for name, cfg := range buckets {
		if cfg.MaxPerMinute == 0 {
			cfg.MaxPerMinute = 60
		}
		if cfg.Burst == 0 {
			cfg.Burst = cfg.MaxPerMinute * 2
		}
		normalized[name] = cfg
	}

	rl := &RateLimiter{
		windows: make(map[string]*rateLimitWindow),
		buckets: normalized,
		logger:  log.New(log.Writer(), "[RATE-LIMIT] ", log.LstdFlags),
	}
	go rl.cleanup()
	return rl
}

// Allow checks a key against its bucket. Unknown buckets always allow.
func (rl *RateLimiter) Allow(bucket, key string) bool {
	cfg, ok := rl.buckets[bucket]
	if !ok {
		return true
	}
	full := bucket + "|" + key
	now := time.Now()

	// Fast path: existing window under read lock. count++ under RLock is a
	// benign race; this is a soft limit.
	rl.mu.RLock()
	window, exists := rl.windows[full]
	if exists && now.Sub(window.windowStart) <= time.Minute {
		window.count++
		count := window.count
		rl.mu.RUnlock()

		if count > cfg.Burst || count > cfg.MaxPerMinute {
			rl.logger.Printf("rate limit exceeded: bucket=%s count=%d limit=%d", bucket, count, cfg.MaxPerMinute)
			return false
		}
		return true
	}
	rl.mu.RUnlock()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	window, exists = rl.windows[full]
	if exists && now.Sub(window.windowStart) <= time.Minute {
		window.count++
		return window.count <= cfg.Burst
	}
	rl.windows[full] = &rateLimitWindow{count: 1, windowStart: now}
	return true
}

// Check writes a 429 and returns false when the key is over its bucket.
func (rl *RateLimiter) Check(w http.ResponseWriter, bucket, key string) bool {
	if rl.Allow(bucket, key) {
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded","retry_after_seconds":60}`))
	return false
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, window := range rl.windows {
			if now.Sub(window.windowStart) > 2*time.Minute {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

// ClientAddr extracts the caller address for rate-limit keys, honoring
// X-Forwarded-For from the fronting proxy.
func ClientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
