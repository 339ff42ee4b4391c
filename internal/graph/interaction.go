package graph

import (
	"sort"
	"time"
)

// Interaction is the normalized boundary event folded into a user graph.
// One of From/To is always SelfID. Interactions are immutable once folded and
// folding is idempotent per RawRef.
type Interaction struct {
	From      string    `json:"from" validate:"required,max=256"`
	To        string    `json:"to" validate:"required,max=256"`
	Channel   string    `json:"channel" validate:"required,max=64"`
	Timestamp time.Time `json:"timestamp"`
	Sentiment float64   `json:"sentiment" validate:"gte=-1,lte=1"`
	// ResponseLatency is in seconds; nil when the event carries no reply.
	ResponseLatency *float64 `json:"response_latency_s,omitempty" validate:"omitempty,gte=0"`
	RawRef          string   `json:"raw_ref" validate:"required,max=512"`
	// Participants lists other external identities on the same message or
	// meeting (cc, attendees). They get co-participation edges among
	// themselves and with the counterpart.
	Participants []string `json:"participants,omitempty" validate:"max=50,dive,required,max=256"`
}

// Outbound reports whether the owner sent the interaction.
func (in Interaction) Outbound() bool {
	return in.From == SelfID
}

// Counterpart returns the non-self side of the interaction.
func (in Interaction) Counterpart() string {
	if in.Outbound() {
		return in.To
	}
	return in.From
}

// Sample is one sentiment observation retained on an edge.
type Sample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// insertSample returns a new window with s placed by timestamp. Samples with
// equal timestamps keep arrival order. When the window is full the sample
// with the oldest timestamp is evicted, so backfilled history never pushes
// out newer samples. window is never modified, so slices handed out in
// snapshots stay valid without copying.
func insertSample(window []Sample, s Sample, capacity int) []Sample {
	if capacity < 1 {
		capacity = 1
	}
	at := sort.Search(len(window), func(i int) bool { return window[i].At.After(s.At) })
	if len(window) >= capacity && at == 0 {
		// Older than everything retained: it would be evicted immediately.
		return window
	}

	next := make([]Sample, 0, len(window)+1)
	next = append(next, window[:at]...)
	next = append(next, s)
	next = append(next, window[at:]...)
	if drop := len(next) - capacity; drop > 0 {
		next = next[drop:]
	}
	return next
}
