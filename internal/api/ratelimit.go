package api

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sortersocial/sorter/internal/logging"
)

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// tokenBucket is a standard token bucket refilled continuously.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(capacity, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimiter applies per-client request limits, keyed by remote IP.
type RateLimiter struct {
	cfg      RateLimiterConfig
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	seen     map[string]time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*tokenBucket),
		seen:    make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop terminates the cleanup goroutine. The limiter keeps serving
// Middleware traffic; idle buckets just stop being reclaimed.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// bucketFor returns (creating if needed) the bucket for a client key.
func (rl *RateLimiter) bucketFor(key string) *tokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = newTokenBucket(float64(rl.cfg.BurstSize), float64(rl.cfg.RequestsPerMinute)/60)
		rl.buckets[key] = b
	}
	rl.seen[key] = time.Now()
	return b
}

// cleanupLoop drops buckets idle for more than ten minutes.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			rl.mu.Lock()
			for key, last := range rl.seen {
				if last.Before(cutoff) {
					delete(rl.buckets, key)
					delete(rl.seen, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// clientKey extracts the client IP from the request.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.bucketFor(key).allow() {
			logging.SecurityEvent("rate_limit_exceeded", "api", "client", key)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", 60/max(rl.cfg.RequestsPerMinute, 1)+1))
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
