package engine

import (
	"math"
	"time"

	"github.com/lazypower/rapport/internal/graph"
)

// Decayed is the exponentially time-weighted view of an edge's samples.
type Decayed struct {
	// Value is the weighted mean sentiment, clamped to [-1,1]. It is 0 when
	// NoData is set.
	Value  float64 `json:"value"`
	NoData bool    `json:"no_data"`
	// Activity is the sum of sample weights: a recency-decayed interaction
	// density used as edge weight.
	Activity float64 `json:"activity"`
	Samples  int     `json:"samples"`
}

// decayRate returns λ for a half-life, so that a sample's weight halves
// every halfLife.
func decayRate(halfLife time.Duration) float64 {
	if halfLife <= 0 {
		halfLife = DefaultParams().HalfLife
	}
	return math.Ln2 / halfLife.Seconds()
}

// DecaySentiment computes the decayed sentiment of samples at now. Samples
// dated after now are ignored. It is a pure function of its arguments.
func DecaySentiment(samples []graph.Sample, now time.Time, halfLife time.Duration) Decayed {
	lambda := decayRate(halfLife)
	var num, den float64
	n := 0
	for _, s := range samples {
		dt := now.Sub(s.At).Seconds()
		if dt < 0 {
			continue
		}
		w := math.Exp(-lambda * dt)
		num += w * s.Value
		den += w
		n++
	}
	if n == 0 || den == 0 {
		return Decayed{NoData: true, Samples: n}
	}
	return Decayed{
		Value:    clampUnit(num / den),
		Activity: den,
		Samples:  n,
	}
}

// Activity returns only the recency-decayed density of samples at now.
func Activity(samples []graph.Sample, now time.Time, halfLife time.Duration) float64 {
	return DecaySentiment(samples, now, halfLife).Activity
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
