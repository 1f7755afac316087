package webhook

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-remote-address token bucket, grounded on the
// teacher's infrastructure/middleware RateLimiter but keyed purely on
// client address since webhook callers are never authenticated principals.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter allowing requestsPerWindow requests per
// window, per distinct client address (§4.4: 30/min on the webhook
// ingress, §6.2: 5/min on manual provisioning).
func NewRateLimiter(requestsPerWindow int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(requestsPerWindow) / window.Seconds()),
		burst:    requestsPerWindow,
	}
}

// Allow reports whether a request from addr may proceed.
func (rl *RateLimiter) Allow(addr string) bool {
	rl.mu.Lock()
	limiter, ok := rl.limiters[addr]
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[addr] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// ClientAddr extracts the remote address from a request, preferring
// X-Forwarded-For's first hop when present (reverse-proxy deployments).
func ClientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
