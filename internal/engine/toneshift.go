package engine

import (
	"math"
	"sort"
	"time"

	"github.com/lazypower/rapport/internal/graph"
)

// ToneStatus is the verdict of the tone-shift detector for one edge.
type ToneStatus string

const (
	Declining        ToneStatus = "declining"
	Improving        ToneStatus = "improving"
	Stable           ToneStatus = "stable"
	InsufficientData ToneStatus = "insufficient_data"
)

// ToneWindow is the pair of disjoint windows a shift was measured over.
type ToneWindow struct {
	RecentFrom   time.Time `json:"recent_from"`
	RecentTo     time.Time `json:"recent_to"`
	BaselineFrom time.Time `json:"baseline_from"`
	BaselineTo   time.Time `json:"baseline_to"`
}

// ToneShift is the tone-shift evaluation of one directed edge.
type ToneShift struct {
	ContactID       string     `json:"contact_id"`
	DisplayName     string     `json:"display_name,omitempty"`
	From            string     `json:"from"`
	To              string     `json:"to"`
	Direction       ToneStatus `json:"direction"`
	Delta           float64    `json:"delta"`
	RecentMean      float64    `json:"recent_mean"`
	BaselineMean    float64    `json:"baseline_mean"`
	RecentSamples   int        `json:"recent_samples"`
	BaselineSamples int        `json:"baseline_samples"`
	Window          ToneWindow `json:"window"`
}

// Reported reports whether the shift is a signal rather than a non-result.
func (t ToneShift) Reported() bool {
	return t.Direction == Declining || t.Direction == Improving
}

// windows returns the measurement windows at now, or false when the
// configuration would make them overlap.
func (p ToneParams) windows(now time.Time) (ToneWindow, bool) {
	w := ToneWindow{
		RecentFrom:   now.Add(-p.Recent),
		RecentTo:     now,
		BaselineFrom: now.Add(-p.BaselineEnd),
		BaselineTo:   now.Add(-p.BaselineStart),
	}
	ok := p.Recent > 0 && p.BaselineStart >= p.Recent && p.BaselineEnd > p.BaselineStart
	return w, ok
}

// EvaluateToneShift compares recent and baseline sentiment on one edge.
// Anything short of MinSamples in both disjoint windows yields
// InsufficientData.
func EvaluateToneShift(e graph.EdgeView, now time.Time, p ToneParams) ToneShift {
	out := ToneShift{
		ContactID: e.Counterpart(graph.SelfID),
		From:      e.From,
		To:        e.To,
		Direction: InsufficientData,
	}
	w, ok := p.windows(now)
	out.Window = w
	if !ok {
		return out
	}

	var recentSum, baseSum float64
	for _, s := range e.Samples {
		switch {
		case s.At.After(w.RecentFrom) && !s.At.After(w.RecentTo):
			recentSum += s.Value
			out.RecentSamples++
		case !s.At.Before(w.BaselineFrom) && !s.At.After(w.BaselineTo):
			baseSum += s.Value
			out.BaselineSamples++
		}
	}

	minSamples := p.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}
	if out.RecentSamples < minSamples || out.BaselineSamples < minSamples {
		return out
	}

	out.RecentMean = recentSum / float64(out.RecentSamples)
	out.BaselineMean = baseSum / float64(out.BaselineSamples)
	out.Delta = out.RecentMean - out.BaselineMean
	switch {
	case math.Abs(out.Delta) < p.Threshold:
		out.Direction = Stable
	case out.Delta < 0:
		out.Direction = Declining
	default:
		out.Direction = Improving
	}
	return out
}

// DetectToneShifts reports every declining or improving edge between self
// and an active contact, largest |delta| first.
func DetectToneShifts(snap *graph.Snapshot, now time.Time, p ToneParams) []ToneShift {
	out := []ToneShift{}
	for _, e := range snap.EdgesOf(graph.SelfID) {
		c, ok := snap.Contact(e.Counterpart(graph.SelfID))
		if !ok || c.IsSelf() || c.Deprecated {
			continue
		}
		shift := EvaluateToneShift(e, now, p)
		if !shift.Reported() {
			continue
		}
		shift.DisplayName = c.Name()
		out = append(out, shift)
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := math.Abs(out[i].Delta), math.Abs(out[j].Delta)
		if di != dj {
			return di > dj
		}
		if out[i].ContactID != out[j].ContactID {
			return out[i].ContactID < out[j].ContactID
		}
		return out[i].From < out[j].From
	})
	return out
}
