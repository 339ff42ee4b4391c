// Package engine computes read-only relationship analytics over immutable
// graph snapshots: decayed sentiment, tone shifts, key contacts, clusters,
// neglect and the merged attention feed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lazypower/rapport/internal/graph"
	"go.uber.org/zap"
)

// ErrAdjustDisabled is returned when automatic importance adjustment is
// requested but not enabled.
var ErrAdjustDisabled = errors.New("automatic importance adjustment is disabled")

// contactCommitmentLimit caps commitments attached to a contact detail.
const contactCommitmentLimit = 20

// recentSampleCount is how many samples a contact detail shows per edge.
const recentSampleCount = 5

// Engine is the read facade over every user graph in a registry. Reads
// never create a user graph; an unknown user reads as an empty graph.
type Engine struct {
	registry    *graph.Registry
	commitments CommitmentFeed
	params      Params
	log         *zap.Logger
}

// New creates an Engine. feed may be nil, in which case the attention feed
// carries no commitment items.
func New(registry *graph.Registry, feed CommitmentFeed, params Params, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		registry:    registry,
		commitments: feed,
		params:      params,
		log:         log.Named("engine"),
	}
}

// Params returns the engine's tuning.
func (e *Engine) Params() Params {
	return e.params
}

func (e *Engine) snapshot(userID string) (*graph.Snapshot, *graph.Store) {
	graphUsers.Set(float64(e.registry.Len()))
	if store, ok := e.registry.Lookup(userID); ok {
		return store.Snapshot(), store
	}
	return graph.NewStore(userID).Snapshot(), nil
}

// guard runs one analytic, timing it and converting a panic into fallback.
func guard[T any](e *Engine, analytic, userID string, fallback T, fn func() T) (out T) {
	start := time.Now()
	defer func() {
		analyticDuration.WithLabelValues(analytic).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			analyticFailures.WithLabelValues(analytic).Inc()
			e.log.Error("analytic failed",
				zap.String("analytic", analytic),
				zap.String("user_id", userID),
				zap.Any("panic", r))
			out = fallback
		}
	}()
	return fn()
}

// Decay returns the decayed sentiment of an edge at now, reusing the value
// cached in store when it is fresh for the edge's version. A fresh
// computation is written back to store when one is given.
func (e *Engine) Decay(store *graph.Store, v graph.EdgeView, now time.Time) Decayed {
	d := DecaySentiment(v.Samples, now, e.params.HalfLife)
	if store == nil {
		return d
	}
	if c, ok := store.CachedDecay(v.Key()); ok && c.Fresh(now, v.Version, e.params.CacheStaleness) {
		d.Value, d.NoData = c.Value, c.NoData
		return d
	}
	store.StoreDecay(v.Key(), v.Version, d.Value, d.NoData, now)
	return d
}

// GraphNode is a renderable contact.
type GraphNode struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	RelationshipType graph.RelationshipType `json:"relationship_type"`
	Importance       float64                `json:"importance_score"`
	IsVIP            bool                   `json:"is_vip"`
	Deprecated       bool                   `json:"deprecated,omitempty"`
	Self             bool                   `json:"self,omitempty"`
	// Size is the key-contact score, for node radius.
	Size      float64 `json:"size"`
	Sentiment float64 `json:"sentiment"`
	NoData    bool    `json:"no_data"`
}

// GraphLink is a renderable directed edge.
type GraphLink struct {
	Source           string    `json:"source"`
	Target           string    `json:"target"`
	Weight           float64   `json:"weight"`
	InteractionCount int       `json:"interaction_count"`
	Sentiment        float64   `json:"sentiment"`
	NoData           bool      `json:"no_data"`
	LastInteraction  time.Time `json:"last_interaction_at"`
}

// GraphView is the full renderable graph for one user.
type GraphView struct {
	UserID  string      `json:"user_id"`
	Version uint64      `json:"version"`
	Nodes   []GraphNode `json:"nodes"`
	Links   []GraphLink `json:"links"`
}

// Graph returns the user's graph in renderable form. A contact's node
// sentiment is how they sound toward self, falling back to how self sounds
// toward them.
func (e *Engine) Graph(userID string, now time.Time) GraphView {
	snap, store := e.snapshot(userID)
	empty := GraphView{UserID: userID, Nodes: []GraphNode{}, Links: []GraphLink{}}
	return guard(e, "graph", userID, empty, func() GraphView {
		scores := make(map[string]float64)
		for _, kc := range RankKeyContacts(snap, now, e.params.HalfLife, e.params.Centrality) {
			scores[kc.ContactID] = kc.Score
		}

		view := GraphView{
			UserID:  userID,
			Version: snap.Version,
			Nodes:   make([]GraphNode, 0, snap.Len()),
			Links:   make([]GraphLink, 0, snap.EdgeCount()),
		}
		decayed := make(map[graph.EdgeKey]Decayed, snap.EdgeCount())
		for _, edge := range snap.Edges() {
			d := e.Decay(store, edge, now)
			decayed[edge.Key()] = d
			view.Links = append(view.Links, GraphLink{
				Source:           edge.From,
				Target:           edge.To,
				Weight:           d.Activity,
				InteractionCount: edge.InteractionCount,
				Sentiment:        d.Value,
				NoData:           d.NoData,
				LastInteraction:  edge.LastInteractionAt,
			})
		}

		for _, c := range snap.Contacts() {
			node := GraphNode{
				ID:               c.ID,
				Name:             c.Name(),
				RelationshipType: c.RelationshipType,
				Importance:       c.Importance,
				IsVIP:            c.IsVIP,
				Deprecated:       c.Deprecated,
				Self:             c.IsSelf(),
				Size:             scores[c.ID],
				NoData:           true,
			}
			if c.IsSelf() {
				node.Size = 1
			} else {
				for _, key := range []graph.EdgeKey{{From: c.ID, To: graph.SelfID}, {From: graph.SelfID, To: c.ID}} {
					if d, ok := decayed[key]; ok && !d.NoData {
						node.Sentiment, node.NoData = d.Value, false
						break
					}
				}
			}
			view.Nodes = append(view.Nodes, node)
		}
		return view
	})
}

// ToneShifts returns every reported tone shift for the user.
func (e *Engine) ToneShifts(userID string, now time.Time) []ToneShift {
	snap, _ := e.snapshot(userID)
	return guard(e, "tone_shifts", userID, []ToneShift{}, func() []ToneShift {
		return DetectToneShifts(snap, now, e.params.Tone)
	})
}

// Neglected returns neglected and approaching contacts.
func (e *Engine) Neglected(userID string, now time.Time) []NeglectItem {
	snap, _ := e.snapshot(userID)
	return guard(e, "neglect", userID, []NeglectItem{}, func() []NeglectItem {
		return DetectNeglect(snap, now, e.params.Neglect)
	})
}

// KeyContacts returns ranked contacts; limit <= 0 returns all of them.
func (e *Engine) KeyContacts(userID string, now time.Time, limit int) []KeyContact {
	snap, _ := e.snapshot(userID)
	ranked := guard(e, "key_contacts", userID, []KeyContact{}, func() []KeyContact {
		return RankKeyContacts(snap, now, e.params.HalfLife, e.params.Centrality)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Clusters returns the user's contact clusters. It returns
// graph.ErrInsufficientData for graphs too small to cluster.
func (e *Engine) Clusters(userID string, now time.Time) (ClusterResult, error) {
	snap, _ := e.snapshot(userID)
	type result struct {
		res ClusterResult
		err error
	}
	r := guard(e, "clusters", userID, result{res: ClusterResult{Clusters: []Cluster{}}}, func() result {
		res, err := DetectClusters(snap, now, e.params.HalfLife, e.params.Clusters)
		return result{res: res, err: err}
	})
	return r.res, r.err
}

// Attention returns the merged attention feed. Every source reads the same
// snapshot and is computed independently; a failing source contributes no
// items.
func (e *Engine) Attention(ctx context.Context, userID string, now time.Time) []AttentionItem {
	snap, _ := e.snapshot(userID)
	commitments := e.overdueCommitments(ctx, userID, now)
	src := AttentionSources{
		Neglect: guard(e, "neglect", userID, []NeglectItem{}, func() []NeglectItem {
			return DetectNeglect(snap, now, e.params.Neglect)
		}),
		Tone: guard(e, "tone_shifts", userID, []ToneShift{}, func() []ToneShift {
			return DetectToneShifts(snap, now, e.params.Tone)
		}),
		Commitments: commitments,
		Names: func(id string) string {
			if c, ok := snap.Contact(id); ok {
				return c.Name()
			}
			return ""
		},
	}
	return guard(e, "attention", userID, []AttentionItem{}, func() []AttentionItem {
		return MergeAttention(now, src)
	})
}

func (e *Engine) overdueCommitments(ctx context.Context, userID string, now time.Time) []Commitment {
	if e.commitments == nil {
		return nil
	}
	return guard(e, "commitments", userID, []Commitment(nil), func() []Commitment {
		items, err := e.commitments.OverdueCommitments(ctx, userID, now)
		if err != nil {
			analyticFailures.WithLabelValues("commitments").Inc()
			e.log.Error("commitment feed failed",
				zap.String("user_id", userID),
				zap.Error(err))
			return nil
		}
		return items
	})
}

// EdgeDetail is one of a contact's edges with self.
type EdgeDetail struct {
	graph.EdgeView
	Decayed       Decayed        `json:"decayed_sentiment"`
	Tone          ToneShift      `json:"tone"`
	RecentSamples []graph.Sample `json:"recent_samples"`
}

// ContactDetail is a contact with its relationship summary.
type ContactDetail struct {
	Contact     graph.Contact `json:"contact"`
	Edges       []EdgeDetail  `json:"edges"`
	Neglect     *NeglectItem  `json:"neglect,omitempty"`
	Commitments []Commitment  `json:"commitments"`
}

// ContactDetail returns one contact, its edges with self and its linked
// commitments. It returns graph.ErrNotFound for unknown contacts.
func (e *Engine) ContactDetail(ctx context.Context, userID, contactID string, now time.Time) (ContactDetail, error) {
	snap, store := e.snapshot(userID)
	c, ok := snap.Contact(contactID)
	if !ok {
		return ContactDetail{}, fmt.Errorf("%w: contact %s", graph.ErrNotFound, contactID)
	}

	detail := ContactDetail{Contact: c, Edges: []EdgeDetail{}, Commitments: []Commitment{}}
	if !c.IsSelf() {
		for _, key := range []graph.EdgeKey{{From: c.ID, To: graph.SelfID}, {From: graph.SelfID, To: c.ID}} {
			v, ok := snap.Edge(key.From, key.To)
			if !ok {
				continue
			}
			recent := v.Samples
			if len(recent) > recentSampleCount {
				recent = recent[len(recent)-recentSampleCount:]
			}
			detail.Edges = append(detail.Edges, EdgeDetail{
				EdgeView:      v,
				Decayed:       e.Decay(store, v, now),
				Tone:          EvaluateToneShift(v, now, e.params.Tone),
				RecentSamples: append([]graph.Sample(nil), recent...),
			})
		}
		if last, ok := LastInteraction(snap, c.ID); ok {
			if item, ok := EvaluateNeglect(c, last, now, e.params.Neglect); ok {
				detail.Neglect = &item
			}
		}
	}

	if e.commitments != nil {
		items, err := e.commitments.CommitmentsForContact(ctx, userID, contactID, contactCommitmentLimit)
		if err != nil {
			e.log.Error("load contact commitments failed",
				zap.String("user_id", userID),
				zap.String("contact_id", contactID),
				zap.Error(err))
		} else if items != nil {
			detail.Commitments = items
		}
	}
	return detail, nil
}

// SuggestAdjustments proposes nudging each contact's importance toward its
// key-contact score, each bounded by the configured max step. It never
// writes; ingest applies the result.
func (e *Engine) SuggestAdjustments(userID string, now time.Time) ([]graph.Adjustment, error) {
	if !e.params.Adjust.Enabled {
		return nil, ErrAdjustDisabled
	}
	step := e.params.Adjust.MaxStep
	out := []graph.Adjustment{}
	for _, kc := range e.KeyContacts(userID, now, 0) {
		delta := kc.Score - kc.Importance
		delta = math.Max(-step, math.Min(step, delta))
		if math.Abs(delta) < 1e-3 {
			continue
		}
		out = append(out, graph.Adjustment{
			ContactID: kc.ContactID,
			Delta:     delta,
			Reason:    fmt.Sprintf("centrality %.2f", kc.Score),
		})
	}
	return out, nil
}
