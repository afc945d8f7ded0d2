// Package limits implements per-IP byte-rate limiting for the WebSocket
// Subscriber server, adapted from the teacher's per-client token bucket
// (internal/single/limits/rate_limiter.go) and generalized from a
// fixed-message-count budget to a byte budget using golang.org/x/time/rate
// as the bucket implementation instead of the teacher's hand-rolled refill
// loop.
package limits

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBytesPerSecond is spec.md §4.5's per-IP outbound budget.
const DefaultBytesPerSecond = 256 * 1024

// ByIP tracks one token-bucket limiter per client IP, created lazily on
// first use and removed on disconnect.
type ByIP struct {
	bytesPerSecond rate.Limit
	burst          int
	mu             sync.Mutex
	buckets        map[string]*rate.Limiter
}

func NewByIP(bytesPerSecond int) *ByIP {
	return &ByIP{
		bytesPerSecond: rate.Limit(bytesPerSecond),
		burst:          bytesPerSecond,
		buckets:        make(map[string]*rate.Limiter),
	}
}

func (b *ByIP) bucket(ip string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.buckets[ip]
	if !ok {
		lim = rate.NewLimiter(b.bytesPerSecond, b.burst)
		b.buckets[ip] = lim
	}
	return lim
}

// Allow reports whether n bytes may be sent to ip right now, consuming them
// from ip's bucket if so. A burst larger than the bucket's capacity is
// rejected outright rather than ever becoming eligible.
func (b *ByIP) Allow(ip string, n int) bool {
	return b.bucket(ip).AllowN(time.Now(), n)
}

// Remove drops ip's bucket, e.g. on connection close.
func (b *ByIP) Remove(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buckets, ip)
}
