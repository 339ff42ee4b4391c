package graph

import "sort"

// Snapshot is an immutable point-in-time view of one user's graph. It is the
// only way analytics read graph state, so ingestion can proceed while they
// run. Iteration order of every accessor is deterministic.
type Snapshot struct {
	UserID  string
	Version uint64

	contacts map[string]Contact
	edges    map[EdgeKey]EdgeView
	ids      []string
	keys     []EdgeKey
	adj      map[string][]EdgeKey
}

// Contact returns the contact with id.
func (s *Snapshot) Contact(id string) (Contact, bool) {
	c, ok := s.contacts[id]
	return c, ok
}

// Contacts returns every contact, self included, sorted by ID.
func (s *Snapshot) Contacts() []Contact {
	out := make([]Contact, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.contacts[id])
	}
	return out
}

// Active returns the non-self, non-deprecated contacts sorted by ID.
func (s *Snapshot) Active() []Contact {
	out := make([]Contact, 0, len(s.ids))
	for _, id := range s.ids {
		c := s.contacts[id]
		if c.IsSelf() || c.Deprecated {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Edge returns the aggregate edge from → to.
func (s *Snapshot) Edge(from, to string) (EdgeView, bool) {
	e, ok := s.edges[EdgeKey{From: from, To: to}]
	return e, ok
}

// Edges returns every edge sorted by (From, To).
func (s *Snapshot) Edges() []EdgeView {
	out := make([]EdgeView, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, s.edges[k])
	}
	return out
}

// EdgesOf returns the edges with id as either endpoint, sorted by (From, To).
func (s *Snapshot) EdgesOf(id string) []EdgeView {
	keys := s.adj[id]
	out := make([]EdgeView, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.edges[k])
	}
	return out
}

// Neighbors returns the sorted IDs adjacent to id in the given direction.
func (s *Snapshot) Neighbors(id string, dir Direction) []string {
	set := make(map[string]struct{})
	for _, k := range s.adj[id] {
		switch {
		case k.From == id && (dir == Out || dir == Both):
			set[k.To] = struct{}{}
		case k.To == id && (dir == In || dir == Both):
			set[k.From] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of contacts, self included.
func (s *Snapshot) Len() int {
	return len(s.ids)
}

// EdgeCount returns the number of aggregate edges.
func (s *Snapshot) EdgeCount() int {
	return len(s.keys)
}
