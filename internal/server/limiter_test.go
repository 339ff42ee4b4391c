package server

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestUserLimiterChargesPerUser(t *testing.T) {
	l := newUserLimiter(rate.Limit(1), 2)

	assert.True(t, l.allow("alice", 2, now))
	assert.False(t, l.allow("alice", 1, now))
	assert.True(t, l.allow("bob", 1, now), "buckets are per user")
	assert.True(t, l.allow("alice", 1, now.Add(time.Second)))
}

func TestUserLimiterOversizedBatchChargesFullBucket(t *testing.T) {
	l := newUserLimiter(rate.Limit(1), 3)

	assert.True(t, l.allow("alice", 50, now))
	assert.False(t, l.allow("alice", 1, now))
}

func TestUserLimiterBoundsBuckets(t *testing.T) {
	l := newUserLimiter(rate.Limit(1), 1)
	l.maxBuckets = 4

	for i := 0; i < 100; i++ {
		l.allow(fmt.Sprintf("user-%d", i), 1, now)
	}
	assert.LessOrEqual(t, len(l.buckets), 4)
	assert.Contains(t, l.buckets, "user-99")
}

func TestUserLimiterEvictsRefilledBucketsFirst(t *testing.T) {
	l := newUserLimiter(rate.Limit(1), 2)
	l.maxBuckets = 3

	l.allow("idle-a", 1, now)
	l.allow("idle-b", 1, now)
	later := now.Add(time.Minute)
	l.allow("busy", 2, later)

	// Both idle buckets have refilled and go; busy keeps its spent tokens.
	l.allow("new", 1, later)
	assert.Len(t, l.buckets, 2)
	assert.NotContains(t, l.buckets, "idle-a")
	assert.NotContains(t, l.buckets, "idle-b")
	assert.False(t, l.allow("busy", 1, later))
}

func TestUserLimiterEvictsLeastRecentWhenNoneRefilled(t *testing.T) {
	l := newUserLimiter(rate.Limit(0), 1)
	l.maxBuckets = 2

	l.allow("first", 1, now)
	l.allow("second", 1, now.Add(time.Second))
	l.allow("third", 1, now.Add(2*time.Second))

	assert.Len(t, l.buckets, 2)
	assert.NotContains(t, l.buckets, "first")
	assert.Contains(t, l.buckets, "second")
	assert.False(t, l.allow("second", 1, now.Add(3*time.Second)))
}
