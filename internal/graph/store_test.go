package graph

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func testStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return NewStore("user-1", opts...)
}

func inbound(from, ref string, at time.Time, sentiment float64) Interaction {
	return Interaction{
		From:      from,
		To:        SelfID,
		Channel:   "email",
		Timestamp: at,
		Sentiment: sentiment,
		RawRef:    ref,
	}
}

func TestNewStoreHasSelf(t *testing.T) {
	s := testStore(t)

	self, err := s.GetContact(SelfID)
	require.NoError(t, err)
	assert.True(t, self.IsSelf())
	assert.Equal(t, 1.0, self.Importance)
	assert.Equal(t, 1, s.Snapshot().Len())
}

func TestFoldAutoCreatesContact(t *testing.T) {
	s := testStore(t)

	res := s.Fold(inbound("alice@example.com", "msg-1", t0, 0.4))
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 1, res.Edge.InteractionCount)

	c, err := s.GetContact("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, Other, c.RelationshipType)
	assert.Equal(t, DefaultImportance, c.Importance)
	assert.Equal(t, "email", c.PreferredChannel)
}

func TestFoldIdempotentPerRawRef(t *testing.T) {
	s := testStore(t)

	in := inbound("alice", "msg-1", t0, 0.4)
	first := s.Fold(in)
	second := s.Fold(in)

	assert.Equal(t, OutcomeApplied, first.Outcome)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, 1, second.Edge.InteractionCount)

	e, ok := s.Snapshot().Edge("alice", SelfID)
	require.True(t, ok)
	assert.Equal(t, 1, e.InteractionCount)
	assert.Len(t, e.Samples, 1)
	assert.True(t, s.Folded("msg-1"))
}

func TestFoldAggregates(t *testing.T) {
	s := testStore(t)

	lat := func(v float64) *float64 { return &v }
	a := inbound("bob", "m1", t0, 1.0)
	a.ResponseLatency = lat(60)
	b := inbound("bob", "m2", t0.Add(2*time.Hour), 0.0)
	b.ResponseLatency = lat(180)
	b.Channel = "slack"
	c := inbound("bob", "m3", t0.Add(-time.Hour), -0.5)

	s.Fold(a)
	s.Fold(b)
	res := s.Fold(c)

	e := res.Edge
	assert.Equal(t, 3, e.InteractionCount)
	assert.Equal(t, t0.Add(2*time.Hour), e.LastInteractionAt)
	assert.Equal(t, t0.Add(-time.Hour), e.FirstInteractionAt)
	assert.Equal(t, "slack", e.LastChannel)
	assert.Equal(t, 2*time.Minute, e.AvgResponseTime)
	assert.InDelta(t, 1.0/6.0, e.SentimentMean, 1e-9)
}

func TestSampleWindowBounded(t *testing.T) {
	s := testStore(t, WithSampleCapacity(5))

	for i := 0; i < 12; i++ {
		s.Fold(inbound("carol", fmt.Sprintf("m%d", i), t0.Add(time.Duration(i)*time.Minute), float64(i)/20))
	}

	e, _ := s.Snapshot().Edge("carol", SelfID)
	assert.Equal(t, 12, e.InteractionCount)
	require.Len(t, e.Samples, 5)
	assert.Equal(t, t0.Add(7*time.Minute), e.Samples[0].At)
	assert.Equal(t, t0.Add(11*time.Minute), e.Samples[4].At)
}

func TestSampleWindowKeepsNewestWhenBackfilled(t *testing.T) {
	s := testStore(t)

	// Newest first, the way a mailbox is paged backwards.
	for i := 0; i < 5; i++ {
		s.Fold(inbound("carol", fmt.Sprintf("new-%d", i), t0.Add(-time.Duration(i)*day-12*time.Hour), -0.6))
	}
	for i := 0; i < 55; i++ {
		s.Fold(inbound("carol", fmt.Sprintf("old-%d", i), t0.Add(-10*day-time.Duration(i)*9*time.Hour), 0.6))
	}

	e, _ := s.Snapshot().Edge("carol", SelfID)
	assert.Equal(t, 60, e.InteractionCount)
	require.Len(t, e.Samples, DefaultSampleCapacity)
	assert.True(t, sort.SliceIsSorted(e.Samples, func(i, j int) bool { return e.Samples[i].At.Before(e.Samples[j].At) }))

	recent := 0
	for _, sample := range e.Samples {
		if sample.At.After(t0.Add(-5 * day)) {
			recent++
		}
	}
	assert.Equal(t, 5, recent)
	assert.Equal(t, t0.Add(-12*time.Hour), e.Samples[len(e.Samples)-1].At)
}

func TestInsertSample(t *testing.T) {
	at := func(h int) Sample { return Sample{At: t0.Add(time.Duration(h) * time.Hour), Value: float64(h)} }

	window := insertSample(nil, at(5), 3)
	window = insertSample(window, at(1), 3)
	window = insertSample(window, at(3), 3)
	assert.Equal(t, []Sample{at(1), at(3), at(5)}, window)

	// Full: a newer sample evicts the oldest.
	next := insertSample(window, at(4), 3)
	assert.Equal(t, []Sample{at(3), at(4), at(5)}, next)
	assert.Equal(t, []Sample{at(1), at(3), at(5)}, window, "input window must not change")

	// Full: an older sample than everything retained is dropped.
	assert.Equal(t, []Sample{at(3), at(4), at(5)}, insertSample(next, at(0), 3))

	// Equal timestamps keep arrival order.
	tie := Sample{At: at(5).At, Value: -1}
	assert.Equal(t, []Sample{at(4), at(5), tie}, insertSample(next, tie, 3))
}

func TestSnapshotIsolatedFromLaterWrites(t *testing.T) {
	s := testStore(t)
	s.Fold(inbound("dave", "m1", t0, 0.2))

	before := s.Snapshot()
	s.Fold(inbound("dave", "m2", t0.Add(time.Hour), -0.2))
	s.Fold(inbound("erin", "m3", t0, 0.1))

	e, _ := before.Edge("dave", SelfID)
	assert.Equal(t, 1, e.InteractionCount)
	assert.Len(t, e.Samples, 1)
	_, ok := before.Contact("erin")
	assert.False(t, ok)

	after := s.Snapshot()
	assert.NotSame(t, before, after)
	assert.Same(t, after, s.Snapshot(), "snapshot should be reused when nothing changed")
}

func TestFoldParticipantsCreateCoEdges(t *testing.T) {
	s := testStore(t)

	in := Interaction{
		From:         SelfID,
		To:           "alice",
		Channel:      "email",
		Timestamp:    t0,
		RawRef:       "thread-1",
		Participants: []string{"bob", "carol", "bob", SelfID, "alice"},
	}
	s.Fold(in)

	snap := s.Snapshot()
	for _, pair := range [][2]string{{"alice", "bob"}, {"alice", "carol"}, {"bob", "carol"}} {
		ab, ok := snap.Edge(pair[0], pair[1])
		require.True(t, ok, "%s->%s", pair[0], pair[1])
		assert.Equal(t, 1, ab.InteractionCount)
		_, ok = snap.Edge(pair[1], pair[0])
		assert.True(t, ok, "%s->%s", pair[1], pair[0])
	}
	_, ok := snap.Edge(SelfID, "bob")
	assert.False(t, ok, "participants do not get a direct edge with self")

	assert.Equal(t, []string{"bob", "carol", SelfID}, snap.Neighbors("alice", Both))
}

func TestNeighbors(t *testing.T) {
	s := testStore(t)
	s.Fold(inbound("alice", "m1", t0, 0))
	s.Fold(Interaction{From: SelfID, To: "bob", Channel: "chat", Timestamp: t0, RawRef: "m2"})

	out, err := s.Neighbors(SelfID, Out)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, out)

	in, err := s.Neighbors(SelfID, In)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, in)

	both, err := s.Neighbors(SelfID, Both)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, both)

	_, err = s.Neighbors("nobody", Both)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateContact(t *testing.T) {
	s := testStore(t)
	s.Fold(inbound("alice", "m1", t0, 0))

	imp := 0.9
	vip := true
	c, err := s.UpdateContact("alice", ContactPatch{Importance: &imp, IsVIP: &vip})
	require.NoError(t, err)
	assert.Equal(t, 0.9, c.Importance)
	assert.True(t, c.IsVIP)

	bad := 1.5
	_, err = s.UpdateContact("alice", ContactPatch{Importance: &bad})
	assert.ErrorIs(t, err, ErrInvalidMutation)

	got, _ := s.GetContact("alice")
	assert.Equal(t, 0.9, got.Importance, "rejected patch must not be applied")

	_, err = s.UpdateContact("ghost", ContactPatch{Importance: &imp})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateContact(SelfID, ContactPatch{Importance: &imp})
	assert.ErrorIs(t, err, ErrInvalidMutation)
}

func TestUpsertContact(t *testing.T) {
	s := testStore(t)

	c, err := s.UpsertContact(Contact{ID: "zoe", DisplayName: "Zoe", RelationshipType: Investor, Importance: 0.8})
	require.NoError(t, err)
	assert.Equal(t, t0, c.CreatedAt)

	_, err = s.UpsertContact(Contact{ID: "zoe", Importance: -0.1})
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = s.UpsertContact(Contact{ID: "zoe", RelationshipType: "rival", Importance: 0.1})
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = s.UpsertContact(Contact{ID: SelfID, Importance: 0.1})
	assert.ErrorIs(t, err, ErrInvalidMutation)
}

func TestAdjustImportanceBounded(t *testing.T) {
	s := testStore(t)
	s.Fold(inbound("alice", "m1", t0, 0))

	c, err := s.AdjustImportance("alice", 0.4, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, c.Importance, 1e-9)

	c, err = s.AdjustImportance("alice", -0.01, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 0.54, c.Importance, 1e-9)

	_, err = s.AdjustImportance("alice", 0.01, 0)
	assert.ErrorIs(t, err, ErrInvalidMutation)

	for i := 0; i < 30; i++ {
		c, _ = s.AdjustImportance("alice", 1, 0.05)
	}
	assert.Equal(t, 1.0, c.Importance)
}

func TestDeprecateKeepsEdges(t *testing.T) {
	s := testStore(t)
	s.Fold(inbound("alice", "m1", t0, 0))

	c, err := s.Deprecate("alice")
	require.NoError(t, err)
	assert.True(t, c.Deprecated)

	snap := s.Snapshot()
	_, ok := snap.Edge("alice", SelfID)
	assert.True(t, ok)
	assert.Empty(t, snap.Active())

	_, err = s.Deprecate(SelfID)
	assert.ErrorIs(t, err, ErrInvalidMutation)
}

func TestStoreDecayRejectsStaleVersion(t *testing.T) {
	s := testStore(t)
	res := s.Fold(inbound("alice", "m1", t0, 0.5))
	key := res.Edge.Key()

	assert.True(t, s.StoreDecay(key, res.Edge.Version, 0.5, false, t0))
	c, ok := s.CachedDecay(key)
	require.True(t, ok)
	assert.True(t, c.Fresh(t0.Add(time.Minute), res.Edge.Version, time.Hour))
	assert.False(t, c.Fresh(t0.Add(2*time.Hour), res.Edge.Version, time.Hour))
	assert.False(t, c.Fresh(t0.Add(-time.Minute), res.Edge.Version, time.Hour))

	s.Fold(inbound("alice", "m2", t0, 0.1))
	assert.False(t, s.StoreDecay(key, res.Edge.Version, 0.5, false, t0))
	e, _ := s.Snapshot().Edge("alice", SelfID)
	c, _ = s.CachedDecay(key)
	assert.False(t, c.Fresh(t0, e.Version, time.Hour), "fold must invalidate the cache")
}

func TestStoreDecayLeavesGraphVersion(t *testing.T) {
	s := testStore(t)
	res := s.Fold(inbound("alice", "m1", t0, 0.5))

	before := s.Snapshot()
	require.True(t, s.StoreDecay(res.Edge.Key(), res.Edge.Version, 0.5, false, t0))
	after := s.Snapshot()
	assert.Same(t, before, after)
	assert.Equal(t, before.Version, after.Version)
}

func TestConcurrentFoldCountsExactly(t *testing.T) {
	s := testStore(t)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				// Every writer replays the same refs; each must count once.
				s.Fold(inbound("alice", fmt.Sprintf("m%d", i), t0, 0.1))
				_ = s.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	e, _ := s.Snapshot().Edge("alice", SelfID)
	assert.Equal(t, perWriter, e.InteractionCount)
}

func TestRegistryIsolatesUsers(t *testing.T) {
	r := NewRegistry()
	r.For("u1").Fold(inbound("alice", "m1", t0, 0))
	r.For("u2").Fold(inbound("alice", "m1", t0, 0))

	assert.Equal(t, []string{"u1", "u2"}, r.Users())
	assert.Same(t, r.For("u1"), r.For("u1"))

	e1, _ := r.For("u1").Snapshot().Edge("alice", SelfID)
	e2, _ := r.For("u2").Snapshot().Edge("alice", SelfID)
	assert.Equal(t, 1, e1.InteractionCount)
	assert.Equal(t, 1, e2.InteractionCount)

	_, ok := r.Lookup("u3")
	assert.False(t, ok)
}
