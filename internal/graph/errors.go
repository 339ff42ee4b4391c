package graph

import "errors"

// Error taxonomy shared by every layer that reads or mutates a user graph.
// A replayed raw_ref is not an error: Fold reports it as OutcomeDuplicate.
var (
	// ErrNotFound is returned by direct queries for a contact the graph has
	// never seen. Ingestion never returns it: unknown identities are created.
	ErrNotFound = errors.New("contact not found")

	// ErrInsufficientData means an analytic declined to produce a signal.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidMutation is a caller-visible validation failure on a
	// contact mutation (e.g. importance outside [0,1]).
	ErrInvalidMutation = errors.New("invalid mutation")

	// ErrMalformedInteraction is returned when a boundary event fails
	// validation. Nothing from the event is applied.
	ErrMalformedInteraction = errors.New("malformed interaction")
)
