package engine

import "time"

// Day is the unit every day-denominated output uses.
const Day = 24 * time.Hour

// Params holds the tunables for every analytic. The zero value is not
// useful; start from DefaultParams.
type Params struct {
	HalfLife       time.Duration
	CacheStaleness time.Duration

	Tone       ToneParams
	Centrality CentralityParams
	Clusters   ClusterParams
	Neglect    NeglectParams
	Adjust     AdjustParams
}

// ToneParams configures the tone-shift detector. The recent window is
// (now-Recent, now]; the baseline window is [now-BaselineEnd, now-BaselineStart].
type ToneParams struct {
	Recent        time.Duration
	BaselineStart time.Duration
	BaselineEnd   time.Duration
	MinSamples    int
	Threshold     float64
}

// CentralityParams configures the key-contact ranker.
type CentralityParams struct {
	Damping       float64
	MaxIterations int
	Tolerance     float64
	// DegreeWeight blends weighted degree against influence.
	DegreeWeight float64
	// ImportanceBase is the share of edge weight independent of the
	// counterpart's importance.
	ImportanceBase float64
}

// ClusterParams configures the cluster detector.
type ClusterParams struct {
	MinSize        int
	ThresholdRatio float64
	MinEdgeWeight  float64
}

// NeglectParams configures the neglect detector.
type NeglectParams struct {
	ImportanceFloor float64
	MinWindow       time.Duration
	MaxWindow       time.Duration
	WarnAhead       time.Duration
}

// AdjustParams configures the opt-in automatic importance adjustment.
type AdjustParams struct {
	Enabled bool
	MaxStep float64
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		HalfLife:       14 * Day,
		CacheStaleness: time.Hour,
		Tone: ToneParams{
			Recent:        7 * Day,
			BaselineStart: 8 * Day,
			BaselineEnd:   35 * Day,
			MinSamples:    2,
			Threshold:     0.3,
		},
		Centrality: CentralityParams{
			Damping:        0.85,
			MaxIterations:  100,
			Tolerance:      1e-9,
			DegreeWeight:   0.5,
			ImportanceBase: 0.5,
		},
		Clusters: ClusterParams{
			MinSize:        2,
			ThresholdRatio: 0.25,
			MinEdgeWeight:  0.1,
		},
		Neglect: NeglectParams{
			ImportanceFloor: 0.6,
			MinWindow:       7 * Day,
			MaxWindow:       21 * Day,
			WarnAhead:       3 * Day,
		},
		Adjust: AdjustParams{
			Enabled: false,
			MaxStep: 0.05,
		},
	}
}

func days(d time.Duration) float64 {
	return d.Hours() / 24
}
