// Package ingest is the single write path into user graphs: it validates
// boundary events, journals them, and folds them into the graph store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/lazypower/rapport/internal/graph"
	"go.uber.org/zap"
)

// Additional outcomes reported for events that were not folded.
const (
	OutcomeRejected graph.Outcome = "rejected"
	OutcomeFailed   graph.Outcome = "failed"
)

// Journal durably records interactions and contact edits so graphs can be
// rebuilt on startup. AppendInteraction reports false for a raw_ref the
// journal already holds.
type Journal interface {
	AppendInteraction(ctx context.Context, userID string, in graph.Interaction) (bool, error)
	SaveContact(ctx context.Context, userID string, c graph.Contact) error
	Users(ctx context.Context) ([]string, error)
	LoadContacts(ctx context.Context, userID string) ([]graph.Contact, error)
	LoadInteractions(ctx context.Context, userID string, fn func(graph.Interaction) error) error
}

// Result is the per-event outcome of an ingest call.
type Result struct {
	RawRef           string        `json:"raw_ref"`
	Outcome          graph.Outcome `json:"outcome"`
	InteractionCount int           `json:"interaction_count,omitempty"`
	Error            string        `json:"error,omitempty"`
	Fields           []FieldError  `json:"fields,omitempty"`
}

// Service is the writer for every user graph in a Registry. Writes for one
// user are serialized end to end, so the journal order is the fold order
// and Replay rebuilds exactly the live graph.
type Service struct {
	registry *graph.Registry
	journal  Journal
	validate *validator.Validate
	log      *zap.Logger

	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

// New creates a Service. journal may be nil for a memory-only graph.
func New(registry *graph.Registry, journal Journal, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		registry: registry,
		journal:  journal,
		validate: newValidator(),
		log:      log.Named("ingest"),
		writers:  make(map[string]*sync.Mutex),
	}
}

// writer returns the lock that serializes userID's writes.
func (s *Service) writer(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.writers[userID]
	if !ok {
		w = &sync.Mutex{}
		s.writers[userID] = w
	}
	return w
}

// Registry returns the graphs this service writes to.
func (s *Service) Registry() *graph.Registry {
	return s.registry
}

func normalize(in graph.Interaction) graph.Interaction {
	in.From = strings.TrimSpace(in.From)
	in.To = strings.TrimSpace(in.To)
	in.Channel = strings.TrimSpace(in.Channel)
	in.RawRef = strings.TrimSpace(in.RawRef)
	if len(in.Participants) > 0 {
		ps := make([]string, len(in.Participants))
		for i, p := range in.Participants {
			ps[i] = strings.TrimSpace(p)
		}
		in.Participants = ps
	}
	return in
}

// Ingest validates, journals and folds one interaction. A replayed raw_ref
// is a successful no-op with OutcomeDuplicate. A malformed event returns a
// *ValidationError and changes nothing.
func (s *Service) Ingest(ctx context.Context, userID string, in graph.Interaction) (Result, error) {
	in = normalize(in)
	res := Result{RawRef: in.RawRef}

	if strings.TrimSpace(userID) == "" {
		interactionsTotal.WithLabelValues(string(OutcomeRejected)).Inc()
		res.Outcome = OutcomeRejected
		res.Error = "user id is required"
		return res, fmt.Errorf("%w: empty user id", graph.ErrMalformedInteraction)
	}

	if err := s.Validate(in); err != nil {
		interactionsTotal.WithLabelValues(string(OutcomeRejected)).Inc()
		s.log.Warn("rejected interaction",
			zap.String("user_id", userID),
			zap.String("raw_ref", in.RawRef),
			zap.Error(err))
		res.Outcome = OutcomeRejected
		res.Error = err.Error()
		var verr *ValidationError
		if errors.As(err, &verr) {
			res.Fields = verr.Fields
		}
		return res, err
	}

	w := s.writer(userID)
	w.Lock()
	defer w.Unlock()

	store := s.registry.For(userID)
	if s.journal != nil && !store.Folded(in.RawRef) {
		if _, err := s.journal.AppendInteraction(ctx, userID, in); err != nil {
			interactionsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
			s.log.Error("journal append failed",
				zap.String("user_id", userID),
				zap.String("raw_ref", in.RawRef),
				zap.Error(err))
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
			return res, fmt.Errorf("journal interaction %s: %w", in.RawRef, err)
		}
	}

	folded := store.Fold(in)
	interactionsTotal.WithLabelValues(string(folded.Outcome)).Inc()
	if folded.Outcome == graph.OutcomeDuplicate {
		s.log.Debug("duplicate interaction ignored",
			zap.String("user_id", userID),
			zap.String("raw_ref", in.RawRef))
	}
	res.Outcome = folded.Outcome
	res.InteractionCount = folded.Edge.InteractionCount
	return res, nil
}

// IngestBatch ingests events in order. One bad event never stops the rest;
// the returned error is non-nil only if ctx is cancelled.
func (s *Service) IngestBatch(ctx context.Context, userID string, events []graph.Interaction) ([]Result, error) {
	results := make([]Result, 0, len(events))
	for _, in := range events {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, _ := s.Ingest(ctx, userID, in)
		results = append(results, res)
	}
	return results, nil
}

// PatchContact applies a user edit to a known contact. The journal is
// written before the graph, so a persistence failure leaves both unchanged.
func (s *Service) PatchContact(ctx context.Context, userID, contactID string, patch graph.ContactPatch) (graph.Contact, error) {
	if err := patch.Validate(); err != nil {
		return graph.Contact{}, err
	}
	w := s.writer(userID)
	w.Lock()
	defer w.Unlock()

	store, ok := s.registry.Lookup(userID)
	if !ok {
		return graph.Contact{}, fmt.Errorf("%w: user %s has no graph", graph.ErrNotFound, userID)
	}
	current, err := store.GetContact(contactID)
	if err != nil {
		return graph.Contact{}, err
	}
	if current.IsSelf() {
		return graph.Contact{}, fmt.Errorf("%w: self cannot be modified", graph.ErrInvalidMutation)
	}
	if s.journal != nil {
		if err := s.journal.SaveContact(ctx, userID, patch.Apply(current)); err != nil {
			return graph.Contact{}, fmt.Errorf("save contact %s: %w", contactID, err)
		}
	}
	updated, err := store.UpdateContact(contactID, patch)
	if err != nil {
		return graph.Contact{}, err
	}
	s.log.Info("contact updated",
		zap.String("user_id", userID),
		zap.String("contact_id", contactID))
	return updated, nil
}

// RemoveContact soft-deprecates a contact. Like PatchContact, the journal is
// written first.
func (s *Service) RemoveContact(ctx context.Context, userID, contactID string) (graph.Contact, error) {
	w := s.writer(userID)
	w.Lock()
	defer w.Unlock()

	store, ok := s.registry.Lookup(userID)
	if !ok {
		return graph.Contact{}, fmt.Errorf("%w: user %s has no graph", graph.ErrNotFound, userID)
	}
	current, err := store.GetContact(contactID)
	if err != nil {
		return graph.Contact{}, err
	}
	if current.IsSelf() {
		return graph.Contact{}, fmt.Errorf("%w: self cannot be removed", graph.ErrInvalidMutation)
	}
	if s.journal != nil {
		current.Deprecated = true
		if err := s.journal.SaveContact(ctx, userID, current); err != nil {
			return graph.Contact{}, fmt.Errorf("save contact %s: %w", contactID, err)
		}
	}
	c, err := store.Deprecate(contactID)
	if err != nil {
		return graph.Contact{}, err
	}
	s.log.Info("contact removed",
		zap.String("user_id", userID),
		zap.String("contact_id", contactID))
	return c, nil
}

// ApplyAdjustments writes automatic importance adjustments, each bounded to
// maxStep. Contacts that vanished or failed are skipped and logged.
func (s *Service) ApplyAdjustments(ctx context.Context, userID string, adjustments []graph.Adjustment, maxStep float64) ([]graph.Contact, error) {
	if maxStep <= 0 {
		return nil, fmt.Errorf("%w: max step must be positive", graph.ErrInvalidMutation)
	}
	w := s.writer(userID)
	w.Lock()
	defer w.Unlock()

	store, ok := s.registry.Lookup(userID)
	if !ok {
		return nil, fmt.Errorf("%w: user %s has no graph", graph.ErrNotFound, userID)
	}
	var out []graph.Contact
	for _, adj := range adjustments {
		c, err := store.AdjustImportance(adj.ContactID, adj.Delta, maxStep)
		if err != nil {
			s.log.Warn("importance adjustment skipped",
				zap.String("user_id", userID),
				zap.String("contact_id", adj.ContactID),
				zap.Error(err))
			continue
		}
		if s.journal != nil {
			if err := s.journal.SaveContact(ctx, userID, c); err != nil {
				s.log.Error("persist adjusted contact failed",
					zap.String("user_id", userID),
					zap.String("contact_id", c.ID),
					zap.Error(err))
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// Replay rebuilds every journaled user graph. Contacts are restored first so
// user edits win over auto-created defaults; interactions are folded in
// journal order without being journaled again.
func (s *Service) Replay(ctx context.Context) (users, interactions int, err error) {
	if s.journal == nil {
		return 0, 0, nil
	}
	ids, err := s.journal.Users(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list users: %w", err)
	}
	for _, userID := range ids {
		n, err := s.replayUser(ctx, userID)
		interactions += n
		if err != nil {
			return users, interactions, err
		}
		users++
	}
	s.log.Info("replay complete", zap.Int("users", users), zap.Int("interactions", interactions))
	return users, interactions, nil
}

func (s *Service) replayUser(ctx context.Context, userID string) (int, error) {
	w := s.writer(userID)
	w.Lock()
	defer w.Unlock()

	store := s.registry.For(userID)
	contacts, err := s.journal.LoadContacts(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("load contacts for %s: %w", userID, err)
	}
	for _, c := range contacts {
		if _, err := store.UpsertContact(c); err != nil {
			s.log.Warn("skipping journaled contact",
				zap.String("user_id", userID),
				zap.String("contact_id", c.ID),
				zap.Error(err))
		}
	}

	folded := 0
	err = s.journal.LoadInteractions(ctx, userID, func(in graph.Interaction) error {
		if store.Fold(in).Outcome == graph.OutcomeApplied {
			folded++
		}
		return nil
	})
	if err != nil {
		return folded, fmt.Errorf("load interactions for %s: %w", userID, err)
	}
	return folded, nil
}
