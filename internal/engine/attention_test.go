package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deadline(ago time.Duration) *time.Time {
	t := now.Add(-ago)
	return &t
}

func TestMergeAttentionCommitmentBeforeVIPNeglect(t *testing.T) {
	items := MergeAttention(now, AttentionSources{
		Commitments: []Commitment{{
			ID: "c1", ContactID: "alice", Description: "send the deck",
			Deadline: deadline(Day), Status: CommitmentActive, Severity: 0.7,
		}},
		Neglect: []NeglectItem{{
			ContactID: "alice", DisplayName: "Alice", IsVIP: true,
			GapDays: 10, WindowDays: 7, Status: Neglected,
		}},
		Names: func(string) string { return "Alice" },
	})

	require.Len(t, items, 2)
	assert.Equal(t, OverdueCommitment, items[0].Type)
	assert.Equal(t, "alice", items[0].ContactID)
	assert.NotNil(t, items[0].Deadline)
	assert.Contains(t, items[0].Message, "send the deck")
	assert.Equal(t, NeglectedContact, items[1].Type)
	assert.Equal(t, TierNeglectedVIP, items[1].Tier)
	assert.Nil(t, items[1].Deadline)
}

func TestMergeAttentionTierOrder(t *testing.T) {
	items := MergeAttention(now, AttentionSources{
		Commitments: []Commitment{{ContactID: "dan", Deadline: deadline(time.Hour), Status: CommitmentActive, Severity: 0.1}},
		Neglect: []NeglectItem{
			{ContactID: "carol", DisplayName: "carol", GapDays: 40, WindowDays: 21, Status: Neglected},
			{ContactID: "bob", DisplayName: "bob", IsVIP: true, GapDays: 8, WindowDays: 7, Status: Neglected},
		},
		Tone: []ToneShift{{ContactID: "erin", Direction: Declining, Delta: -1.5}},
	})

	require.Len(t, items, 4)
	got := make([]string, len(items))
	for i, it := range items {
		got[i] = string(it.Type) + ":" + it.ContactID
	}
	assert.Equal(t, []string{
		"overdue_commitment:dan",
		"neglected_contact:bob",
		"tone_decline:erin",
		"neglected_contact:carol",
	}, got)
}

func TestMergeAttentionDeduplicates(t *testing.T) {
	items := MergeAttention(now, AttentionSources{
		Commitments: []Commitment{
			{ID: "1", ContactID: "alice", Description: "older", Deadline: deadline(5 * Day), Status: CommitmentActive, Severity: 0.5},
			{ID: "2", ContactID: "alice", Description: "newer", Deadline: deadline(Day), Status: CommitmentActive, Severity: 0.5},
		},
		Tone: []ToneShift{
			{ContactID: "bob", From: "bob", To: "self", Direction: Declining, Delta: -0.4},
			{ContactID: "bob", From: "self", To: "bob", Direction: Declining, Delta: -0.8},
		},
	})

	require.Len(t, items, 2)
	seen := make(map[itemKey]bool)
	for _, it := range items {
		k := itemKey{kind: it.Type, contact: it.ContactID}
		assert.False(t, seen[k], "duplicate %v", k)
		seen[k] = true
	}
	assert.True(t, strings.HasSuffix(items[0].Message, "(+1 more)"))
	assert.Contains(t, items[0].Message, "older")
	assert.InDelta(t, 0.8, items[1].Urgency, 1e-12)
}

func TestMergeAttentionFiltersNonSignals(t *testing.T) {
	items := MergeAttention(now, AttentionSources{
		Commitments: []Commitment{
			{ContactID: "a", Deadline: deadline(-Day), Status: CommitmentActive},
			{ContactID: "b", Deadline: deadline(Day), Status: CommitmentFulfilled},
			{ContactID: "c", Status: CommitmentActive},
		},
		Neglect: []NeglectItem{{ContactID: "d", GapDays: 5, WindowDays: 7, DaysUntilCold: 2, Status: Approaching}},
		Tone:    []ToneShift{{ContactID: "e", Direction: Improving, Delta: 0.9}},
	})
	assert.Empty(t, items)
}

func TestCommitmentOverdue(t *testing.T) {
	assert.True(t, Commitment{Status: CommitmentOverdue}.Overdue(now))
	assert.True(t, Commitment{Status: CommitmentActive, Deadline: deadline(time.Minute)}.Overdue(now))
	assert.False(t, Commitment{Status: CommitmentActive, Deadline: deadline(-time.Minute)}.Overdue(now))
	assert.False(t, Commitment{Status: CommitmentCancelled, Deadline: deadline(Day)}.Overdue(now))
	assert.False(t, CommitmentStatus("late").Valid())
}
