package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/lazypower/rapport/internal/graph"
)

// MinClusterContacts is the fewest active contacts clustering will run on.
const MinClusterContacts = 3

// ClusterMember is one contact in a cluster.
type ClusterMember struct {
	ContactID        string                 `json:"contact_id"`
	DisplayName      string                 `json:"display_name"`
	RelationshipType graph.RelationshipType `json:"relationship_type"`
}

// Cluster is a connected group of contacts. An entry with Other set is not a
// cluster: it is the bucket of every contact whose component fell below the
// minimum size, so two unrelated contacts can share it. It always sorts last
// and carries the ID "other".
type Cluster struct {
	ID      string          `json:"id"`
	Label   string          `json:"label"`
	Members []ClusterMember `json:"members"`
	Other   bool            `json:"other,omitempty"`
}

// ClusterResult is the output of the cluster detector.
type ClusterResult struct {
	Clusters  []Cluster `json:"clusters"`
	Threshold float64   `json:"threshold"`
}

type pair struct{ a, b string }

// DetectClusters groups active contacts into connected components over
// contact-to-contact edges heavier than a threshold derived from the median
// pair weight. Members, neighbors and components are visited in sorted
// order so the same snapshot always yields the same clusters.
func DetectClusters(snap *graph.Snapshot, now time.Time, halfLife time.Duration, p ClusterParams) (ClusterResult, error) {
	active := snap.Active()
	if len(active) < MinClusterContacts {
		return ClusterResult{Clusters: []Cluster{}}, fmt.Errorf("%w: clustering needs at least %d contacts, have %d",
			graph.ErrInsufficientData, MinClusterContacts, len(active))
	}
	byID := make(map[string]graph.Contact, len(active))
	for _, c := range active {
		byID[c.ID] = c
	}

	weights := make(map[pair]float64)
	for _, e := range snap.Edges() {
		if _, ok := byID[e.From]; !ok {
			continue
		}
		if _, ok := byID[e.To]; !ok {
			continue
		}
		k := pair{a: e.From, b: e.To}
		if k.b < k.a {
			k.a, k.b = k.b, k.a
		}
		weights[k] += Activity(e.Samples, now, halfLife)
	}

	threshold := pairThreshold(weights, p)
	adj := make(map[string][]string)
	for k, w := range weights {
		if w <= threshold {
			continue
		}
		adj[k.a] = append(adj[k.a], k.b)
		adj[k.b] = append(adj[k.b], k.a)
	}
	for id := range adj {
		sort.Strings(adj[id])
	}

	minSize := p.MinSize
	if minSize < 1 {
		minSize = 1
	}

	var clusters []Cluster
	var leftovers []ClusterMember
	seen := make(map[string]bool, len(active))
	for _, c := range active {
		if seen[c.ID] {
			continue
		}
		component := bfs(c.ID, adj, seen)
		members := make([]ClusterMember, 0, len(component))
		for _, id := range component {
			members = append(members, member(byID[id]))
		}
		if len(members) < minSize {
			leftovers = append(leftovers, members...)
			continue
		}
		clusters = append(clusters, Cluster{
			ID:      "cluster:" + members[0].ContactID,
			Label:   majorityLabel(members),
			Members: members,
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		if len(clusters[i].Members) != len(clusters[j].Members) {
			return len(clusters[i].Members) > len(clusters[j].Members)
		}
		return clusters[i].ID < clusters[j].ID
	})
	if len(leftovers) > 0 {
		sort.Slice(leftovers, func(i, j int) bool { return leftovers[i].ContactID < leftovers[j].ContactID })
		clusters = append(clusters, Cluster{
			ID:      "other",
			Label:   string(graph.Other),
			Members: leftovers,
			Other:   true,
		})
	}
	if clusters == nil {
		clusters = []Cluster{}
	}
	return ClusterResult{Clusters: clusters, Threshold: threshold}, nil
}

// pairThreshold is the larger of the configured floor and a fraction of the
// median positive pair weight.
func pairThreshold(weights map[pair]float64, p ClusterParams) float64 {
	vals := make([]float64, 0, len(weights))
	for _, w := range weights {
		if w > 0 {
			vals = append(vals, w)
		}
	}
	if len(vals) == 0 {
		return p.MinEdgeWeight
	}
	sort.Float64s(vals)
	median := vals[len(vals)/2]
	if len(vals)%2 == 0 {
		median = (vals[len(vals)/2-1] + vals[len(vals)/2]) / 2
	}
	t := p.ThresholdRatio * median
	if t < p.MinEdgeWeight {
		t = p.MinEdgeWeight
	}
	return t
}

// bfs returns the sorted component containing start and marks it seen.
func bfs(start string, adj map[string][]string, seen map[string]bool) []string {
	seen[start] = true
	queue := []string{start}
	var component []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		component = append(component, id)
		for _, n := range adj[id] {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	sort.Strings(component)
	return component
}

func member(c graph.Contact) ClusterMember {
	return ClusterMember{
		ContactID:        c.ID,
		DisplayName:      c.Name(),
		RelationshipType: c.RelationshipType,
	}
}

// majorityLabel returns the most common relationship type, breaking ties
// alphabetically.
func majorityLabel(members []ClusterMember) string {
	counts := make(map[graph.RelationshipType]int)
	for _, m := range members {
		counts[m.RelationshipType]++
	}
	best, bestCount := "", 0
	for rel, n := range counts {
		label := string(rel)
		if n > bestCount || (n == bestCount && label < best) {
			best, bestCount = label, n
		}
	}
	return best
}
