package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultMaxBuckets caps how many users the limiter tracks at once.
const defaultMaxBuckets = 10000

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// userLimiter holds one token bucket per user. The user ID comes straight
// from the request path, so the table is bounded: once it is full, buckets
// idle long enough to have refilled are dropped first, then the least
// recently seen.
type userLimiter struct {
	mu         sync.Mutex
	limit      rate.Limit
	burst      int
	maxBuckets int
	buckets    map[string]*bucket
}

func newUserLimiter(limit rate.Limit, burst int) *userLimiter {
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		limit:      limit,
		burst:      burst,
		maxBuckets: defaultMaxBuckets,
		buckets:    make(map[string]*bucket),
	}
}

// allow reserves n events for userID. Batches larger than the burst are
// charged a full bucket.
func (l *userLimiter) allow(userID string, n int, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[userID]
	if !ok {
		if len(l.buckets) >= l.maxBuckets {
			l.evict(now)
		}
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	if now.After(b.lastSeen) {
		b.lastSeen = now
	}
	l.mu.Unlock()
	if n > l.burst {
		n = l.burst
	}
	if n < 1 {
		n = 1
	}
	return b.lim.AllowN(now, n)
}

// evict makes room for one bucket. Must be called with mu held.
func (l *userLimiter) evict(now time.Time) {
	if refill, ok := l.refillTime(); ok {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) >= refill {
				delete(l.buckets, id)
			}
		}
	}
	for len(l.buckets) >= l.maxBuckets {
		var oldest string
		var oldestAt time.Time
		for id, b := range l.buckets {
			if oldest == "" || b.lastSeen.Before(oldestAt) || (b.lastSeen.Equal(oldestAt) && id < oldest) {
				oldest, oldestAt = id, b.lastSeen
			}
		}
		delete(l.buckets, oldest)
	}
}

// refillTime is how long an untouched bucket takes to be full again, at
// which point forgetting it loses nothing. A zero limit never refills.
func (l *userLimiter) refillTime() (time.Duration, bool) {
	switch {
	case l.limit == rate.Inf:
		return 0, true
	case l.limit <= 0:
		return 0, false
	}
	return time.Duration(float64(l.burst) / float64(l.limit) * float64(time.Second)), true
}
