package engine

import (
	"sort"
	"time"

	"github.com/lazypower/rapport/internal/graph"
)

// NeglectStatus separates contacts past their window from those nearing it.
type NeglectStatus string

const (
	Neglected   NeglectStatus = "neglected"
	Approaching NeglectStatus = "approaching"
)

// NeglectItem describes a contact that is, or is about to be, neglected.
type NeglectItem struct {
	ContactID         string        `json:"contact_id"`
	DisplayName       string        `json:"display_name"`
	Importance        float64       `json:"importance_score"`
	IsVIP             bool          `json:"is_vip"`
	PreferredChannel  string        `json:"preferred_channel,omitempty"`
	LastInteractionAt time.Time     `json:"last_interaction_at"`
	GapDays           float64       `json:"gap_days"`
	WindowDays        float64       `json:"window_days"`
	DaysUntilCold     float64       `json:"days_until_cold"`
	Status            NeglectStatus `json:"status"`
}

// Overdue is how far past its window the contact is, as a multiple of the
// window. It is below 1 for approaching contacts.
func (n NeglectItem) Overdue() float64 {
	if n.WindowDays <= 0 {
		return 0
	}
	return n.GapDays / n.WindowDays
}

// Eligible reports whether c is watched for neglect at all.
func Eligible(c graph.Contact, p NeglectParams) bool {
	if c.IsSelf() || c.Deprecated {
		return false
	}
	return c.IsVIP || c.Importance >= p.ImportanceFloor
}

// NeglectWindow is the tolerated gap for a contact. It interpolates linearly
// from MaxWindow at the importance floor to MinWindow at importance 1. VIPs
// always get MinWindow.
func NeglectWindow(importance float64, vip bool, p NeglectParams) time.Duration {
	if vip {
		importance = 1
	}
	if p.ImportanceFloor >= 1 {
		return p.MinWindow
	}
	imp := importance
	if imp < p.ImportanceFloor {
		imp = p.ImportanceFloor
	}
	if imp > 1 {
		imp = 1
	}
	t := (imp - p.ImportanceFloor) / (1 - p.ImportanceFloor)
	span := float64(p.MaxWindow - p.MinWindow)
	return p.MaxWindow - time.Duration(t*span)
}

// LastInteraction returns the latest interaction between id and self in
// either direction.
func LastInteraction(snap *graph.Snapshot, id string) (time.Time, bool) {
	var last time.Time
	for _, key := range [2][2]string{{id, graph.SelfID}, {graph.SelfID, id}} {
		if e, ok := snap.Edge(key[0], key[1]); ok && e.LastInteractionAt.After(last) {
			last = e.LastInteractionAt
		}
	}
	return last, !last.IsZero()
}

// EvaluateNeglect measures one contact against its window. The second
// result is false when the contact is not eligible.
func EvaluateNeglect(c graph.Contact, last time.Time, now time.Time, p NeglectParams) (NeglectItem, bool) {
	if !Eligible(c, p) {
		return NeglectItem{}, false
	}
	window := NeglectWindow(c.Importance, c.IsVIP, p)
	gap := now.Sub(last)
	if gap < 0 {
		gap = 0
	}
	item := NeglectItem{
		ContactID:         c.ID,
		DisplayName:       c.Name(),
		Importance:        c.Importance,
		IsVIP:             c.IsVIP,
		PreferredChannel:  c.PreferredChannel,
		LastInteractionAt: last,
		GapDays:           days(gap),
		WindowDays:        days(window),
	}
	if remaining := window - gap; remaining > 0 {
		item.DaysUntilCold = days(remaining)
	}
	if gap >= window {
		item.Status = Neglected
	} else {
		item.Status = Approaching
	}
	return item, true
}

// DetectNeglect lists eligible contacts past their window, most overdue
// first, followed by those within WarnAhead of it, soonest first. Contacts
// with no interaction with self are skipped.
func DetectNeglect(snap *graph.Snapshot, now time.Time, p NeglectParams) []NeglectItem {
	out := []NeglectItem{}
	for _, c := range snap.Active() {
		last, ok := LastInteraction(snap, c.ID)
		if !ok {
			continue
		}
		item, ok := EvaluateNeglect(c, last, now, p)
		if !ok {
			continue
		}
		if item.Status == Approaching && item.DaysUntilCold > days(p.WarnAhead) {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Status != b.Status {
			return a.Status == Neglected
		}
		if a.Status == Neglected && a.Overdue() != b.Overdue() {
			return a.Overdue() > b.Overdue()
		}
		if a.Status == Approaching && a.DaysUntilCold != b.DaysUntilCold {
			return a.DaysUntilCold < b.DaysUntilCold
		}
		return a.ContactID < b.ContactID
	})
	return out
}
