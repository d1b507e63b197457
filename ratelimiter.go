package lrthrome

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiterIdleTimeout is how long a source IP's entry may sit
// untouched before the sweep reclaims it, the way routedns's
// cache-memory.go startGC reclaims expired entries.
const rateLimiterIdleTimeout = 60 * time.Second

// rateLimiterSweepInterval is how often the idle sweep runs.
const rateLimiterSweepInterval = 30 * time.Second

// burstWindow is the GCRA burst window: a source IP may spend five
// seconds' worth of its sustained allowance as a single burst rather
// than strictly one token at a time, the way a TCP client reconnecting
// and immediately issuing a batch of requests is expected to behave.
const burstWindow = 5 * time.Second

// RateLimiter enforces a per-source-IP request budget, independent of
// any one connection: a peer that reconnects doesn't get a fresh
// budget. Entries are created lazily on first use and reclaimed by a
// background sweep once idle — grounded on routedns's RateLimiter
// (rate-limiter.go), a sync.Mutex-guarded map keyed by client identity,
// generalized from that limiter's fixed-window counter to
// golang.org/x/time/rate's token-bucket/GCRA implementation.
type RateLimiter struct {
	requestsPerSecond float64

	mu      sync.Mutex
	entries map[string]*rateLimiterEntry

	stop chan struct{}
}

type rateLimiterEntry struct {
	limiter   *rate.Limiter
	lastTouch time.Time
}

// NewRateLimiter returns a RateLimiter allowing requestsPerSecond
// sustained requests per source IP, with bursts of up to
// requestsPerSecond*5 (one burstWindow's worth) permitted at once.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	r := &RateLimiter{
		requestsPerSecond: requestsPerSecond,
		entries:           make(map[string]*rateLimiterEntry),
		stop:              make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Allow reports whether source is currently within its rate limit,
// consuming one token from its bucket if so.
func (r *RateLimiter) Allow(source net.IP) bool {
	key := source.String()
	now := time.Now()

	r.mu.Lock()
	entry, ok := r.entries[key]
	if !ok {
		burst := int(r.requestsPerSecond * burstWindow.Seconds())
		if burst < 1 {
			burst = 1
		}
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rate.Limit(r.requestsPerSecond), burst)}
		r.entries[key] = entry
	}
	entry.lastTouch = now
	allowed := entry.limiter.AllowN(now, 1)
	r.mu.Unlock()

	return allowed
}

// Close stops the idle-entry sweep goroutine.
func (r *RateLimiter) Close() {
	close(r.stop)
}

func (r *RateLimiter) sweepLoop() {
	for {
		select {
		case <-r.stop:
			return
		case <-time.After(rateLimiterSweepInterval):
		}
		r.sweep()
	}
}

func (r *RateLimiter) sweep() {
	cutoff := time.Now().Add(-rateLimiterIdleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		if entry.lastTouch.Before(cutoff) {
			delete(r.entries, key)
		}
	}
}
