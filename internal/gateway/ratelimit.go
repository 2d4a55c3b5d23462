package gateway

import (
	"sync"
	"time"

	"github.com/modernreader/sensoria/internal/fault"
)

const (
	// DefaultRatePerSecond is the token refill rate per API key.
	DefaultRatePerSecond = 20

	// DefaultBurst is the bucket capacity per API key.
	DefaultBurst = 20
)

// rateLimiter is a per-key token bucket. Buckets refill continuously at the
// configured rate up to the burst capacity.
type rateLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(ratePerSecond, burst int, now func() time.Time) *rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = DefaultRatePerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &rateLimiter{
		rate:    float64(ratePerSecond),
		burst:   float64(burst),
		now:     now,
		buckets: make(map[string]*bucket),
	}
}

// allow takes one token for key, refilling first. A drained bucket rejects
// with quota_exceeded.
func (l *rateLimiter) allow(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now

	if b.tokens < 1 {
		return fault.New(fault.QuotaExceeded, "gateway: rate limit exceeded").
			WithHint("slow down; the bucket refills continuously")
	}
	b.tokens--
	return nil
}
