package engine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/lazypower/rapport/internal/graph"
	"github.com/stretchr/testify/assert"
)

func TestDecaySentimentNoData(t *testing.T) {
	d := DecaySentiment(nil, now, 14*Day)
	assert.True(t, d.NoData)
	assert.Zero(t, d.Value)
	assert.Zero(t, d.Activity)

	// A computed neutral is not the same as silence.
	neutral := DecaySentiment(samplesAt(1, 0), now, 14*Day)
	assert.False(t, neutral.NoData)
	assert.Zero(t, neutral.Value)
}

func TestDecaySentimentHalfLife(t *testing.T) {
	// Weights 1 and 0.5: (1 - 0.5) / 1.5.
	d := DecaySentiment(samplesAt(0, 1, 14, -1), now, 14*Day)
	assert.InDelta(t, 1.0/3.0, d.Value, 1e-12)
	assert.InDelta(t, 1.5, d.Activity, 1e-12)
	assert.Equal(t, 2, d.Samples)
}

func TestDecaySentimentIgnoresFutureSamples(t *testing.T) {
	samples := append(samplesAt(1, 0.5), graph.Sample{At: now.Add(time.Hour), Value: -1})
	d := DecaySentiment(samples, now, 14*Day)
	assert.Equal(t, 1, d.Samples)
	assert.InDelta(t, 0.5, d.Value, 1e-12)

	onlyFuture := DecaySentiment([]graph.Sample{{At: now.Add(time.Hour), Value: 1}}, now, 14*Day)
	assert.True(t, onlyFuture.NoData)
}

func TestDecaySentimentDeterministic(t *testing.T) {
	samples := samplesAt(0.5, 0.2, 3, -0.7, 9, 0.9, 20, 0.1, 33, -0.3)
	first := DecaySentiment(samples, now, 14*Day)
	second := DecaySentiment(samples, now, 14*Day)
	assert.Equal(t, first, second)
}

func TestDecaySentimentClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(50)
		samples := make([]graph.Sample, n)
		for j := range samples {
			samples[j] = graph.Sample{
				At:    now.Add(-time.Duration(rng.Int63n(int64(90 * Day)))),
				Value: rng.Float64()*2 - 1,
			}
		}
		halfLife := time.Duration(1+rng.Intn(60)) * Day
		d := DecaySentiment(samples, now, halfLife)
		assert.GreaterOrEqual(t, d.Value, -1.0)
		assert.LessOrEqual(t, d.Value, 1.0)
	}
}

func TestDecaySentimentNonPositiveHalfLifeFallsBack(t *testing.T) {
	samples := samplesAt(0, 1, 14, -1)
	assert.Equal(t, DecaySentiment(samples, now, 14*Day), DecaySentiment(samples, now, 0))
}
