package engine

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ItemType is the kind of an attention item.
type ItemType string

const (
	OverdueCommitment ItemType = "overdue_commitment"
	NeglectedContact  ItemType = "neglected_contact"
	ToneDecline       ItemType = "tone_decline"
)

// Attention tiers, most urgent first.
const (
	TierCommitment = iota
	TierNeglectedVIP
	TierToneDecline
	TierNeglected
)

// AttentionItem is one entry of the merged attention feed.
type AttentionItem struct {
	Type        ItemType   `json:"type"`
	ContactID   string     `json:"contact_id"`
	ContactName string     `json:"contact_name,omitempty"`
	Severity    float64    `json:"severity"`
	Message     string     `json:"message"`
	Deadline    *time.Time `json:"deadline"`
	Tier        int        `json:"tier"`
	// Urgency orders items within a tier; larger is more urgent.
	Urgency float64 `json:"urgency"`
}

// AttentionSources are the inputs merged into the feed.
type AttentionSources struct {
	Commitments []Commitment
	Neglect     []NeglectItem
	Tone        []ToneShift
	// Names resolves display names for commitment contacts. Optional.
	Names func(contactID string) string
}

type itemKey struct {
	kind    ItemType
	contact string
}

// MergeAttention builds the ranked feed. At most one item per (type,
// contact) is emitted; duplicates are collapsed before ranking.
func MergeAttention(now time.Time, src AttentionSources) []AttentionItem {
	items := make(map[itemKey]AttentionItem)
	counts := make(map[itemKey]int)
	keep := func(it AttentionItem) {
		k := itemKey{kind: it.Type, contact: it.ContactID}
		counts[k]++
		if cur, ok := items[k]; ok && !moreUrgent(it, cur) {
			return
		}
		items[k] = it
	}

	for _, c := range src.Commitments {
		if !c.Overdue(now) {
			continue
		}
		keep(commitmentItem(c, now, src.Names))
	}
	for _, n := range src.Neglect {
		if n.Status != Neglected {
			continue
		}
		keep(neglectItem(n))
	}
	for _, t := range src.Tone {
		if t.Direction != Declining {
			continue
		}
		keep(toneItem(t))
	}

	out := make([]AttentionItem, 0, len(items))
	for k, it := range items {
		if k.kind == OverdueCommitment && counts[k] > 1 {
			it.Message = fmt.Sprintf("%s (+%d more)", it.Message, counts[k]-1)
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Urgency != b.Urgency {
			return a.Urgency > b.Urgency
		}
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		return a.ContactID < b.ContactID
	})
	return out
}

func moreUrgent(a, b AttentionItem) bool {
	if a.Urgency != b.Urgency {
		return a.Urgency > b.Urgency
	}
	return a.Severity > b.Severity
}

func commitmentItem(c Commitment, now time.Time, names func(string) string) AttentionItem {
	name := c.ContactID
	if names != nil {
		if n := names(c.ContactID); n != "" {
			name = n
		}
	}
	urgency := c.Severity
	if c.Deadline != nil {
		urgency += days(now.Sub(*c.Deadline))
	}
	desc := c.Description
	if desc == "" {
		desc = "commitment"
	}
	return AttentionItem{
		Type:        OverdueCommitment,
		ContactID:   c.ContactID,
		ContactName: name,
		Severity:    clamp01(c.Severity),
		Message:     fmt.Sprintf("Overdue for %s: %s", name, desc),
		Deadline:    c.Deadline,
		Tier:        TierCommitment,
		Urgency:     urgency,
	}
}

func neglectItem(n NeglectItem) AttentionItem {
	tier := TierNeglected
	if n.IsVIP {
		tier = TierNeglectedVIP
	}
	return AttentionItem{
		Type:        NeglectedContact,
		ContactID:   n.ContactID,
		ContactName: n.DisplayName,
		Severity:    math.Min(1, n.Overdue()/2),
		Message:     fmt.Sprintf("No contact with %s for %.0f days", n.DisplayName, math.Floor(n.GapDays)),
		Tier:        tier,
		Urgency:     n.Overdue(),
	}
}

func toneItem(t ToneShift) AttentionItem {
	name := t.DisplayName
	if name == "" {
		name = t.ContactID
	}
	mag := math.Abs(t.Delta)
	return AttentionItem{
		Type:        ToneDecline,
		ContactID:   t.ContactID,
		ContactName: name,
		Severity:    math.Min(1, mag/2),
		Message:     fmt.Sprintf("Tone with %s is declining (%+.2f)", name, t.Delta),
		Tier:        TierToneDecline,
		Urgency:     mag,
	}
}
