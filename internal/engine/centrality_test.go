package engine

import (
	"encoding/json"
	"testing"

	"github.com/lazypower/rapport/internal/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankKeyContactsOrdersByActivity(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 8; i++ {
		f.inbound("alice", dur(float64(i)), 0.3)
		f.outbound("alice", dur(float64(i)+0.5), 0.3)
	}
	f.inbound("bob", dur(2), 0.1)
	f.inbound("carol", dur(40), 0.1)

	ranked := RankKeyContacts(f.snap(), now, 14*Day, DefaultParams().Centrality)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, ids(ranked))
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)
	assert.InDelta(t, 1.0, ranked[0].Degree, 1e-9)
	for _, kc := range ranked {
		assert.GreaterOrEqual(t, kc.Score, 0.0)
		assert.LessOrEqual(t, kc.Score, 1.0)
		assert.NotEqual(t, graph.SelfID, kc.ContactID)
	}
	assert.Greater(t, ranked[1].Score, ranked[2].Score)
}

func TestRankKeyContactsImportanceWeightsEdges(t *testing.T) {
	f := newFixture(t)
	f.contact("low", 0.1, false, graph.Colleague)
	f.contact("high", 1.0, false, graph.Colleague)
	for i := 0; i < 3; i++ {
		f.inbound("low", dur(float64(i)), 0)
		f.inbound("high", dur(float64(i)), 0)
	}

	ranked := RankKeyContacts(f.snap(), now, 14*Day, DefaultParams().Centrality)
	require.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].ContactID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankKeyContactsTiesByContactID(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"dave", "carol", "erin"} {
		f.inbound(id, dur(1), 0.2)
		f.outbound(id, dur(2), 0.2)
	}

	ranked := RankKeyContacts(f.snap(), now, 14*Day, DefaultParams().Centrality)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"carol", "dave", "erin"}, ids(ranked))
	assert.Equal(t, ranked[0].Score, ranked[1].Score)
}

func TestRankKeyContactsStable(t *testing.T) {
	f := newFixture(t)
	for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
		for j := 0; j <= i; j++ {
			f.inbound(id, dur(float64(j)*1.7), 0.1, "a", "c")
		}
	}
	snap := f.snap()

	first, err := json.Marshal(RankKeyContacts(snap, now, 14*Day, DefaultParams().Centrality))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(RankKeyContacts(snap, now, 14*Day, DefaultParams().Centrality))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestRankKeyContactsWithoutEdges(t *testing.T) {
	f := newFixture(t)
	f.contact("alice", 0.9, true, graph.Friend)
	f.contact("bob", 0.5, false, graph.Friend)

	ranked := RankKeyContacts(f.snap(), now, 14*Day, DefaultParams().Centrality)
	require.Len(t, ranked, 2)
	for _, kc := range ranked {
		assert.Zero(t, kc.Score)
	}
	assert.Equal(t, []string{"alice", "bob"}, ids(ranked))
}

func TestRankKeyContactsSkipsDeprecated(t *testing.T) {
	f := newFixture(t)
	f.inbound("alice", dur(1), 0.2)
	f.inbound("bob", dur(1), 0.2)
	_, err := f.store.Deprecate("bob")
	require.NoError(t, err)

	ranked := RankKeyContacts(f.snap(), now, 14*Day, DefaultParams().Centrality)
	assert.Equal(t, []string{"alice"}, ids(ranked))
}

func ids(ranked []KeyContact) []string {
	out := make([]string, len(ranked))
	for i, kc := range ranked {
		out[i] = kc.ContactID
	}
	return out
}
