package ratelimit

import (
	"time"

	"golang.org/x/time/rate"

	"DeepResearch/internal/service/cache"
)

// Limiter keeps one token bucket per client key. Idle buckets expire so the
// key space stays bounded.
type Limiter struct {
	limit   rate.Limit
	burst   int
	buckets *cache.TTLCache[*rate.Limiter]
}

// New allows perMinute requests per key with the given burst. perMinute <= 0
// disables limiting.
func New(perMinute, burst, maxClients int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{burst: burst, limit: rate.Inf}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	l.buckets = cache.NewTTLCache[*rate.Limiter](maxClients, 10*time.Minute)
	return l
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// RetryAfter estimates how long key must wait for its next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	if l.limit == rate.Inf {
		return 0
	}
	r := l.bucket(key).Reserve()
	d := r.Delay()
	r.Cancel()
	return d
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	return l.buckets.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
}
