package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitByKey is a token-bucket table keyed by an arbitrary string. The
// HTTP middleware keys it by client IP; the websocket handler keys it by the
// authenticated subject to damp display reconnect storms.
type RateLimitByKey struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimitByKey creates a keyed limiter with the default idle eviction
// schedule.
func NewRateLimitByKey(requestsPerSecond float64, burst int) *RateLimitByKey {
	return newRateLimitByKey(requestsPerSecond, burst, time.Minute, 5*time.Minute)
}

func newRateLimitByKey(requestsPerSecond float64, burst int, cleanupInterval, ttl time.Duration) *RateLimitByKey {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	rl := &RateLimitByKey{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(requestsPerSecond),
		burst:   burst,
	}
	go rl.evictIdle(cleanupInterval, ttl)
	return rl
}

// Allow reports whether a request under the given key fits its bucket.
func (rl *RateLimitByKey) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// evictIdle drops buckets that have been quiet for longer than ttl.
func (rl *RateLimitByKey) evictIdle(interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for key, b := range rl.buckets {
			if time.Since(b.lastSeen) > ttl {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	CleanupInterval   time.Duration
	TTL               time.Duration
}

// RateLimiter throttles HTTP requests per client IP: the keyed limiter with
// IP extraction and a 429 response on top.
type RateLimiter struct {
	keyed *RateLimitByKey
}

// NewRateLimiter creates a new IP-based rate limiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		keyed: newRateLimitByKey(cfg.RequestsPerSecond, cfg.BurstSize, cfg.CleanupInterval, cfg.TTL),
	}
}

// Allow checks if a request from the given IP is allowed.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.keyed.Allow(ip)
}

// Middleware rejects over-limit requests with 429 RATE_LIMITED, in the same
// envelope the error handler writes.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(getClientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests. Please try again later.","code":"RATE_LIMITED"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP, trusting proxy headers when present.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// The first entry is the original client.
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
