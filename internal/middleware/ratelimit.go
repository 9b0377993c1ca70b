package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter throttles the anonymous auth endpoints. Counters are scoped to
// client IP plus route, so a credential-stuffing burst against /auth/login
// does not also lock that address out of /auth/refresh. Kept in memory: the
// redis-backed resend limit in the auth service covers the one flow that must
// hold across instances.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	done    chan struct{}
}

type bucket struct {
	hits    int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Close stops the background sweep.
func (rl *RateLimiter) Close() {
	close(rl.done)
}

// sweep drops expired buckets so idle clients don't accumulate.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for key, b := range rl.buckets {
				if now.After(b.resetAt) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		now := time.Now()

		rl.mu.Lock()
		b, ok := rl.buckets[key]
		if !ok || now.After(b.resetAt) {
			b = &bucket{resetAt: now.Add(rl.window)}
			rl.buckets[key] = b
		}
		b.hits++
		hits, resetAt := b.hits, b.resetAt
		rl.mu.Unlock()

		if hits > rl.limit {
			retryIn := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryIn))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				fmt.Sprintf("Too many requests. Retry in %d seconds.", retryIn), r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey is IP + route. RealIP runs earlier in the chain, so RemoteAddr is
// the originating address even behind a proxy.
func clientKey(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ip + " " + r.URL.Path
}
