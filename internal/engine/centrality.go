package engine

import (
	"math"
	"sort"
	"time"

	"github.com/lazypower/rapport/internal/graph"
)

// KeyContact is one ranked entry of the centrality ranker. Score, Degree
// and Influence are each normalized to [0,1].
type KeyContact struct {
	ContactID        string                 `json:"contact_id"`
	DisplayName      string                 `json:"display_name"`
	RelationshipType graph.RelationshipType `json:"relationship_type"`
	Importance       float64                `json:"importance_score"`
	IsVIP            bool                   `json:"is_vip"`
	Score            float64                `json:"score"`
	Degree           float64                `json:"degree"`
	Influence        float64                `json:"influence"`
}

type weightedEdge struct {
	from, to string
	weight   float64
}

// edgeWeight scales an edge's activity by the importance of the endpoint
// that is not self (the target, for contact-to-contact edges).
func edgeWeight(snap *graph.Snapshot, e graph.EdgeView, activity float64, base float64) float64 {
	other := e.To
	if other == graph.SelfID {
		other = e.From
	}
	imp := 0.0
	if c, ok := snap.Contact(other); ok {
		imp = c.Importance
		if c.IsSelf() {
			imp = 1
		}
	}
	base = clamp01(base)
	return activity * (base + (1-base)*imp)
}

// weightedEdges returns the positively weighted edges between non-deprecated
// contacts in snapshot order.
func weightedEdges(snap *graph.Snapshot, now time.Time, halfLife time.Duration, base float64) []weightedEdge {
	var out []weightedEdge
	for _, e := range snap.Edges() {
		if !live(snap, e.From) || !live(snap, e.To) {
			continue
		}
		w := edgeWeight(snap, e, Activity(e.Samples, now, halfLife), base)
		if w <= 0 {
			continue
		}
		out = append(out, weightedEdge{from: e.From, to: e.To, weight: w})
	}
	return out
}

func live(snap *graph.Snapshot, id string) bool {
	c, ok := snap.Contact(id)
	return ok && !c.Deprecated
}

// RankKeyContacts ranks every active contact by a blend of weighted degree
// and weighted PageRank over the snapshot. Self takes part in the walk but
// is never ranked. Equal scores are ordered by contact ID.
func RankKeyContacts(snap *graph.Snapshot, now time.Time, halfLife time.Duration, p CentralityParams) []KeyContact {
	active := snap.Active()
	out := make([]KeyContact, 0, len(active))
	if len(active) == 0 {
		return out
	}

	nodes := []string{graph.SelfID}
	for _, c := range active {
		nodes = append(nodes, c.ID)
	}
	sort.Strings(nodes)
	index := make(map[string]int, len(nodes))
	for i, id := range nodes {
		index[id] = i
	}

	edges := weightedEdges(snap, now, halfLife, p.ImportanceBase)
	degree := make([]float64, len(nodes))
	outWeight := make([]float64, len(nodes))
	for _, e := range edges {
		degree[index[e.from]] += e.weight
		degree[index[e.to]] += e.weight
		outWeight[index[e.from]] += e.weight
	}
	rank := pageRank(nodes, index, edges, outWeight, p)

	maxDegree, maxRank := 0.0, 0.0
	for _, c := range active {
		i := index[c.ID]
		maxDegree = math.Max(maxDegree, degree[i])
		maxRank = math.Max(maxRank, rank[i])
	}

	dw := clamp01(p.DegreeWeight)
	for _, c := range active {
		i := index[c.ID]
		kc := KeyContact{
			ContactID:        c.ID,
			DisplayName:      c.Name(),
			RelationshipType: c.RelationshipType,
			Importance:       c.Importance,
			IsVIP:            c.IsVIP,
		}
		// Without any weighted edge there is no structure to rank.
		if maxDegree > 0 {
			kc.Degree = degree[i] / maxDegree
			if maxRank > 0 {
				kc.Influence = rank[i] / maxRank
			}
			kc.Score = clamp01(dw*kc.Degree + (1-dw)*kc.Influence)
		}
		out = append(out, kc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ContactID < out[j].ContactID
	})
	return out
}

// pageRank runs weighted power iteration. Dangling mass is spread
// uniformly. Summation order follows the sorted node and edge order, so
// results are bit-for-bit reproducible.
func pageRank(nodes []string, index map[string]int, edges []weightedEdge, outWeight []float64, p CentralityParams) []float64 {
	n := len(nodes)
	d := p.Damping
	if d <= 0 || d >= 1 {
		d = DefaultParams().Centrality.Damping
	}
	iterations := p.MaxIterations
	if iterations <= 0 {
		iterations = DefaultParams().Centrality.MaxIterations
	}

	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / float64(n)
	}
	next := make([]float64, n)

	for iter := 0; iter < iterations; iter++ {
		dangling := 0.0
		for i := range rank {
			if outWeight[i] == 0 {
				dangling += rank[i]
			}
		}
		base := (1-d)/float64(n) + d*dangling/float64(n)
		for i := range next {
			next[i] = base
		}
		for _, e := range edges {
			from := index[e.from]
			next[index[e.to]] += d * rank[from] * e.weight / outWeight[from]
		}

		delta := 0.0
		for i := range rank {
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if delta < p.Tolerance {
			break
		}
	}
	return rank
}
