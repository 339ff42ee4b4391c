package graph

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSampleCapacity is the number of sentiment samples kept per edge.
const DefaultSampleCapacity = 50

// Direction selects which adjacency Neighbors walks.
type Direction int

const (
	Out Direction = iota
	In
	Both
)

// Outcome reports what a fold did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
)

// FoldResult is returned by Store.Fold.
type FoldResult struct {
	Outcome Outcome
	Edge    EdgeView
}

// Option configures a Store.
type Option func(*Store)

// WithSampleCapacity sets the per-edge sentiment window size.
func WithSampleCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock overrides the time source used for contact timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store owns the relationship graph of a single user. All writes are
// serialized on mu; readers work on immutable snapshots.
type Store struct {
	userID   string
	capacity int
	now      func() time.Time

	mu       sync.RWMutex
	contacts map[string]*Contact
	edges    map[EdgeKey]*edge
	out      map[string]map[string]struct{}
	in       map[string]map[string]struct{}
	folded   map[string]struct{}
	version  uint64

	snap atomic.Pointer[Snapshot]

	cacheMu sync.Mutex
	decay   map[EdgeKey]DecayCache
}

// NewStore creates an empty graph for userID containing only the self node.
func NewStore(userID string, opts ...Option) *Store {
	s := &Store{
		userID:   userID,
		capacity: DefaultSampleCapacity,
		now:      time.Now,
		contacts: make(map[string]*Contact),
		edges:    make(map[EdgeKey]*edge),
		out:      make(map[string]map[string]struct{}),
		in:       make(map[string]map[string]struct{}),
		folded:   make(map[string]struct{}),
		decay:    make(map[EdgeKey]DecayCache),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.contacts[SelfID] = newSelf(s.now())
	return s
}

// UserID returns the owner of this graph.
func (s *Store) UserID() string {
	return s.userID
}

// UpsertContact registers or replaces the user-editable fields of a contact.
// Derived fields and CreatedAt of an existing contact are preserved.
func (s *Store) UpsertContact(c Contact) (Contact, error) {
	if c.ID == "" {
		return Contact{}, fmt.Errorf("%w: empty contact_id", ErrInvalidMutation)
	}
	if c.ID == SelfID {
		return Contact{}, fmt.Errorf("%w: self cannot be modified", ErrInvalidMutation)
	}
	if err := validImportance(c.Importance); err != nil {
		return Contact{}, err
	}
	if c.RelationshipType == "" {
		c.RelationshipType = Other
	}
	if !c.RelationshipType.Valid() {
		return Contact{}, fmt.Errorf("%w: unknown relationship_type %q", ErrInvalidMutation, c.RelationshipType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.contacts[c.ID]; ok {
		if c.PreferredChannel == "" {
			c.PreferredChannel = existing.PreferredChannel
		}
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() || c.UpdatedAt.Before(c.CreatedAt) {
		c.UpdatedAt = now
	}
	stored := c
	s.contacts[c.ID] = &stored
	s.version++
	return stored, nil
}

// GetContact returns a copy of the contact.
func (s *Store) GetContact(id string) (Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *c, nil
}

// UpdateContact applies a user patch. Validation runs before anything is
// written.
func (s *Store) UpdateContact(id string, patch ContactPatch) (Contact, error) {
	if err := patch.Validate(); err != nil {
		return Contact{}, err
	}
	if id == SelfID {
		return Contact{}, fmt.Errorf("%w: self cannot be modified", ErrInvalidMutation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if patch.Empty() {
		return *c, nil
	}
	*c = patch.Apply(*c)
	c.UpdatedAt = s.now()
	s.version++
	return *c, nil
}

// Deprecate soft-deletes a contact. Its edges are kept; analytics skip it.
func (s *Store) Deprecate(id string) (Contact, error) {
	if id == SelfID {
		return Contact{}, fmt.Errorf("%w: self cannot be deprecated", ErrInvalidMutation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !c.Deprecated {
		c.Deprecated = true
		c.UpdatedAt = s.now()
		s.version++
	}
	return *c, nil
}

// AdjustImportance moves a contact's importance by delta, bounded to
// ±maxStep per call and to [0,1] overall.
func (s *Store) AdjustImportance(id string, delta, maxStep float64) (Contact, error) {
	if maxStep <= 0 || math.IsNaN(maxStep) || math.IsNaN(delta) {
		return Contact{}, fmt.Errorf("%w: invalid adjustment step", ErrInvalidMutation)
	}
	if id == SelfID {
		return Contact{}, fmt.Errorf("%w: self cannot be modified", ErrInvalidMutation)
	}
	delta = math.Max(-maxStep, math.Min(maxStep, delta))

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := clamp01(c.Importance + delta)
	if next != c.Importance {
		c.Importance = next
		c.UpdatedAt = s.now()
		s.version++
	}
	return *c, nil
}

// Folded reports whether rawRef has already been folded.
func (s *Store) Folded(rawRef string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.folded[rawRef]
	return ok
}

// Fold applies a validated interaction: it auto-creates unknown contacts,
// updates the counterpart edge and the co-participation edges, and records
// RawRef so replays are no-ops.
func (s *Store) Fold(in Interaction) FoldResult {
	key := EdgeKey{From: in.From, To: in.To}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.folded[in.RawRef]; dup {
		res := FoldResult{Outcome: OutcomeDuplicate}
		if e, ok := s.edges[key]; ok {
			res.Edge = e.view()
		}
		return res
	}

	counterpart := in.Counterpart()
	s.ensureContact(counterpart, in.Channel)
	primary := s.foldEdge(key, in)

	group := []string{counterpart}
	seen := map[string]bool{counterpart: true, SelfID: true}
	for _, p := range in.Participants {
		if seen[p] {
			continue
		}
		seen[p] = true
		s.ensureContact(p, in.Channel)
		group = append(group, p)
	}
	sort.Strings(group)
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			s.foldEdge(EdgeKey{From: group[i], To: group[j]}, in)
			s.foldEdge(EdgeKey{From: group[j], To: group[i]}, in)
		}
	}

	s.folded[in.RawRef] = struct{}{}
	s.version++
	return FoldResult{Outcome: OutcomeApplied, Edge: primary.view()}
}

func (s *Store) ensureContact(id, channel string) {
	if c, ok := s.contacts[id]; ok {
		if c.PreferredChannel == "" {
			c.PreferredChannel = channel
		}
		return
	}
	now := s.now()
	s.contacts[id] = &Contact{
		ID:               id,
		DisplayName:      id,
		RelationshipType: Other,
		Importance:       DefaultImportance,
		PreferredChannel: channel,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *Store) foldEdge(key EdgeKey, in Interaction) *edge {
	e, ok := s.edges[key]
	if !ok {
		e = &edge{key: key}
		s.edges[key] = e
		link(s.out, key.From, key.To)
		link(s.in, key.To, key.From)
	}
	e.fold(in, s.capacity)
	return e
}

func link(adj map[string]map[string]struct{}, a, b string) {
	set, ok := adj[a]
	if !ok {
		set = make(map[string]struct{})
		adj[a] = set
	}
	set[b] = struct{}{}
}

// StoreDecay records a decayed sentiment computed from the edge at version.
// It is dropped if the edge has been folded since, or if a value from a
// newer version is already cached. The graph version is left alone.
func (s *Store) StoreDecay(key EdgeKey, version uint64, value float64, noData bool, at time.Time) bool {
	s.mu.RLock()
	e, ok := s.edges[key]
	current := ok && e.version == version
	s.mu.RUnlock()
	if !current {
		return false
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if prev, ok := s.decay[key]; ok && prev.Version > version {
		return false
	}
	s.decay[key] = DecayCache{
		Value:      math.Max(-1, math.Min(1, value)),
		NoData:     noData,
		ComputedAt: at,
		Version:    version,
		Valid:      true,
	}
	return true
}

// CachedDecay returns the last decayed sentiment stored for key. Callers
// check it with DecayCache.Fresh against the edge version they hold.
func (s *Store) CachedDecay(key EdgeKey) (DecayCache, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	c, ok := s.decay[key]
	return c, ok
}

// Neighbors returns the sorted IDs adjacent to id in the given direction.
func (s *Store) Neighbors(id string, dir Direction) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.contacts[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	set := make(map[string]struct{})
	if dir == Out || dir == Both {
		for n := range s.out[id] {
			set[n] = struct{}{}
		}
	}
	if dir == In || dir == Both {
		for n := range s.in[id] {
			set[n] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for n := range set {
		ids = append(ids, n)
	}
	sort.Strings(ids)
	return ids, nil
}

// Snapshot returns an immutable view of the graph. Snapshots are memoized
// per version, so reads between writes share one value.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cached := s.snap.Load(); cached != nil && cached.Version == s.version {
		return cached
	}
	snap := s.buildSnapshot()
	s.snap.Store(snap)
	return snap
}

func (s *Store) buildSnapshot() *Snapshot {
	snap := &Snapshot{
		UserID:   s.userID,
		Version:  s.version,
		contacts: make(map[string]Contact, len(s.contacts)),
		edges:    make(map[EdgeKey]EdgeView, len(s.edges)),
		adj:      make(map[string][]EdgeKey, len(s.contacts)),
	}
	for id, c := range s.contacts {
		snap.contacts[id] = *c
		snap.ids = append(snap.ids, id)
	}
	sort.Strings(snap.ids)
	for key, e := range s.edges {
		snap.edges[key] = e.view()
		snap.keys = append(snap.keys, key)
	}
	sort.Slice(snap.keys, func(i, j int) bool { return lessKey(snap.keys[i], snap.keys[j]) })
	for _, key := range snap.keys {
		snap.adj[key.From] = append(snap.adj[key.From], key)
		if key.To != key.From {
			snap.adj[key.To] = append(snap.adj[key.To], key)
		}
	}
	return snap
}

func lessKey(a, b EdgeKey) bool {
	if a.From != b.From {
		return a.From < b.From
	}
	return a.To < b.To
}
