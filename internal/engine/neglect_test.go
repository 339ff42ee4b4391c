package engine

import (
	"testing"
	"time"

	"github.com/lazypower/rapport/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeglectWindowInterpolates(t *testing.T) {
	p := DefaultParams().Neglect
	tests := []struct {
		importance float64
		vip        bool
		want       time.Duration
	}{
		{1.0, false, 7 * Day},
		{0.6, false, 21 * Day},
		{0.8, false, 14 * Day},
		{0.9, false, dur(10.5)},
		{0.3, false, 21 * Day},
		{0.3, true, 7 * Day},
		{0.9, true, 7 * Day},
	}
	for _, tt := range tests {
		got := NeglectWindow(tt.importance, tt.vip, p)
		assert.InDelta(t, float64(tt.want), float64(got), float64(time.Second),
			"importance=%v vip=%v", tt.importance, tt.vip)
	}
}

func TestNeglectVIPScenario(t *testing.T) {
	f := newFixture(t)
	f.contact("alice", 0.9, true, graph.Client)
	f.contact("bob", 0.9, false, graph.Client)
	f.inbound("alice", 10*Day, 0.2)
	f.outbound("bob", 10*Day, 0.2)

	items := DetectNeglect(f.snap(), now, DefaultParams().Neglect)
	require.Len(t, items, 2)

	assert.Equal(t, "alice", items[0].ContactID)
	assert.Equal(t, Neglected, items[0].Status)
	assert.InDelta(t, 10, items[0].GapDays, 1e-9)
	assert.InDelta(t, 7, items[0].WindowDays, 1e-9)
	assert.Zero(t, items[0].DaysUntilCold)

	// Non-VIP at 0.9 tolerates 10.5 days, so bob is only approaching.
	assert.Equal(t, "bob", items[1].ContactID)
	assert.Equal(t, Approaching, items[1].Status)
	assert.InDelta(t, 0.5, items[1].DaysUntilCold, 1e-6)
}

func TestNeglectBoundaryIsInclusive(t *testing.T) {
	p := DefaultParams().Neglect
	c := graph.Contact{ID: "alice", Importance: 1.0}

	at, ok := EvaluateNeglect(c, now.Add(-7*Day), now, p)
	require.True(t, ok)
	assert.Equal(t, Neglected, at.Status)

	before, ok := EvaluateNeglect(c, now.Add(-7*Day+time.Minute), now, p)
	require.True(t, ok)
	assert.Equal(t, Approaching, before.Status)
	assert.Greater(t, before.DaysUntilCold, 0.0)
}

func TestNeglectIgnoresIneligible(t *testing.T) {
	f := newFixture(t)
	f.contact("acquaintance", 0.5, false, graph.Other)
	f.contact("fresh", 0.6, false, graph.Friend)
	f.contact("quiet", 0.9, true, graph.Friend)
	f.inbound("acquaintance", 90*Day, 0)
	f.inbound("fresh", 2*Day, 0)

	items := DetectNeglect(f.snap(), now, DefaultParams().Neglect)
	// quiet has never interacted; fresh has 19 days to go.
	assert.Empty(t, items)
}

func TestNeglectDaysUntilColdNonIncreasing(t *testing.T) {
	p := DefaultParams().Neglect
	c := graph.Contact{ID: "alice", Importance: 0.75}
	last := now.Add(-3 * Day)

	prev := -1.0
	for h := 0; h < 24*20; h += 7 {
		item, ok := EvaluateNeglect(c, last, now.Add(time.Duration(h)*time.Hour), p)
		require.True(t, ok)
		if prev >= 0 {
			assert.LessOrEqual(t, item.DaysUntilCold, prev)
		}
		prev = item.DaysUntilCold
	}
	assert.Zero(t, prev)
}

func TestNeglectMostOverdueFirst(t *testing.T) {
	f := newFixture(t)
	f.contact("a", 1.0, false, graph.Friend)
	f.contact("b", 1.0, false, graph.Friend)
	f.contact("c", 1.0, false, graph.Friend)
	f.inbound("a", 8*Day, 0)
	f.inbound("b", 30*Day, 0)
	f.inbound("c", 8*Day, 0)

	items := DetectNeglect(f.snap(), now, DefaultParams().Neglect)
	require.Len(t, items, 3)
	assert.Equal(t, "b", items[0].ContactID)
	assert.Equal(t, "a", items[1].ContactID)
	assert.Equal(t, "c", items[2].ContactID)
}
