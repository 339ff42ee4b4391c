package graph

import (
	"math"
	"time"
)

// EdgeKey identifies the aggregate edge for a directed contact pair.
type EdgeKey struct {
	From string
	To   string
}

// DecayCache is the last decayed sentiment computed for an edge, stamped
// with the compute time and the edge version it was computed from. It is not
// graph state: writing it never changes the graph version, and it can always
// be recomputed from the samples.
type DecayCache struct {
	Value      float64   `json:"value"`
	NoData     bool      `json:"no_data"`
	ComputedAt time.Time `json:"computed_at"`
	Version    uint64    `json:"version"`
	Valid      bool      `json:"valid"`
}

// Fresh reports whether the cache may stand in for a recomputation at now.
func (c DecayCache) Fresh(now time.Time, version uint64, staleness time.Duration) bool {
	if !c.Valid || c.Version != version {
		return false
	}
	age := now.Sub(c.ComputedAt)
	return age >= 0 && age <= staleness
}

type edge struct {
	key           EdgeKey
	count         int
	first         time.Time
	last          time.Time
	lastChannel   string
	avgResponse   float64 // seconds
	responseCount int
	sentimentMean float64
	samples       []Sample
	version       uint64
}

func (e *edge) fold(in Interaction, capacity int) {
	e.count++
	if e.first.IsZero() || in.Timestamp.Before(e.first) {
		e.first = in.Timestamp
	}
	if in.Timestamp.After(e.last) {
		e.last = in.Timestamp
		e.lastChannel = in.Channel
	}

	sentiment := math.Max(-1, math.Min(1, in.Sentiment))
	e.sentimentMean += (sentiment - e.sentimentMean) / float64(e.count)
	e.samples = insertSample(e.samples, Sample{At: in.Timestamp, Value: sentiment}, capacity)

	if in.ResponseLatency != nil {
		e.responseCount++
		e.avgResponse += (*in.ResponseLatency - e.avgResponse) / float64(e.responseCount)
	}

	// Any fold invalidates cached decay via the version stamp.
	e.version++
}

func (e *edge) view() EdgeView {
	return EdgeView{
		From:               e.key.From,
		To:                 e.key.To,
		InteractionCount:   e.count,
		FirstInteractionAt: e.first,
		LastInteractionAt:  e.last,
		LastChannel:        e.lastChannel,
		AvgResponseTime:    time.Duration(e.avgResponse * float64(time.Second)),
		SentimentMean:      e.sentimentMean,
		Samples:            e.samples,
		Version:            e.version,
	}
}

// EdgeView is an immutable copy of an aggregate edge. Samples is shared with
// the store and must not be modified.
type EdgeView struct {
	From               string        `json:"from"`
	To                 string        `json:"to"`
	InteractionCount   int           `json:"interaction_count"`
	FirstInteractionAt time.Time     `json:"first_interaction_at"`
	LastInteractionAt  time.Time     `json:"last_interaction_at"`
	LastChannel        string        `json:"last_channel,omitempty"`
	AvgResponseTime    time.Duration `json:"avg_response_time"`
	SentimentMean      float64       `json:"sentiment_mean"`
	Samples            []Sample      `json:"-"`
	Version            uint64        `json:"version"`
}

// Key returns the edge's directed pair.
func (v EdgeView) Key() EdgeKey {
	return EdgeKey{From: v.From, To: v.To}
}

// Counterpart returns the endpoint that is not id.
func (v EdgeView) Counterpart(id string) string {
	if v.From == id {
		return v.To
	}
	return v.From
}

// TouchesSelf reports whether the owner is an endpoint.
func (v EdgeView) TouchesSelf() bool {
	return v.From == SelfID || v.To == SelfID
}
