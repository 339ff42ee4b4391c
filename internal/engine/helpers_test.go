package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/lazypower/rapport/internal/graph"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t     *testing.T
	store *graph.Store
	refs  int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		t:     t,
		store: graph.NewStore("user-1", graph.WithClock(func() time.Time { return now })),
	}
}

func (f *fixture) contact(id string, importance float64, vip bool, rel graph.RelationshipType) {
	f.t.Helper()
	_, err := f.store.UpsertContact(graph.Contact{
		ID:               id,
		DisplayName:      id,
		RelationshipType: rel,
		Importance:       importance,
		IsVIP:            vip,
	})
	require.NoError(f.t, err)
}

func (f *fixture) fold(in graph.Interaction) {
	f.t.Helper()
	f.refs++
	in.RawRef = fmt.Sprintf("ref-%d", f.refs)
	if in.Channel == "" {
		in.Channel = "email"
	}
	res := f.store.Fold(in)
	require.Equal(f.t, graph.OutcomeApplied, res.Outcome)
}

// inbound folds a message from contact to self, ago before now.
func (f *fixture) inbound(from string, ago time.Duration, sentiment float64, participants ...string) {
	f.t.Helper()
	f.fold(graph.Interaction{
		From:         from,
		To:           graph.SelfID,
		Timestamp:    now.Add(-ago),
		Sentiment:    sentiment,
		Participants: participants,
	})
}

// outbound folds a message from self to contact, ago before now.
func (f *fixture) outbound(to string, ago time.Duration, sentiment float64) {
	f.t.Helper()
	f.fold(graph.Interaction{
		From:      graph.SelfID,
		To:        to,
		Timestamp: now.Add(-ago),
		Sentiment: sentiment,
	})
}

func (f *fixture) snap() *graph.Snapshot {
	return f.store.Snapshot()
}

func samplesAt(pairs ...float64) []graph.Sample {
	var out []graph.Sample
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, graph.Sample{At: now.Add(-time.Duration(pairs[i] * float64(Day))), Value: pairs[i+1]})
	}
	return out
}

func dur(days float64) time.Duration {
	return time.Duration(days * float64(Day))
}
