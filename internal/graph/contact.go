package graph

import (
	"fmt"
	"math"
	"time"
)

// SelfID is the contact ID of the graph owner. Every interaction has self on
// one side.
const SelfID = "self"

// DefaultImportance is the baseline importance of an auto-created contact.
const DefaultImportance = 0.5

// RelationshipType classifies a contact.
type RelationshipType string

const (
	Colleague RelationshipType = "colleague"
	Manager   RelationshipType = "manager"
	Client    RelationshipType = "client"
	Investor  RelationshipType = "investor"
	Friend    RelationshipType = "friend"
	Family    RelationshipType = "family"
	Other     RelationshipType = "other"

	// Owner is reserved for the self node.
	Owner RelationshipType = "self"
)

var relationshipTypes = map[RelationshipType]bool{
	Colleague: true,
	Manager:   true,
	Client:    true,
	Investor:  true,
	Friend:    true,
	Family:    true,
	Other:     true,
}

// Valid reports whether r is an assignable relationship type.
func (r RelationshipType) Valid() bool {
	return relationshipTypes[r]
}

// ParseRelationshipType maps s to a known type, falling back to Other.
func ParseRelationshipType(s string) RelationshipType {
	r := RelationshipType(s)
	if r.Valid() {
		return r
	}
	return Other
}

// Contact is a node in the relationship graph.
type Contact struct {
	ID               string           `json:"contact_id"`
	DisplayName      string           `json:"display_name"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Importance       float64          `json:"importance_score"`
	IsVIP            bool             `json:"is_vip"`
	PreferredChannel string           `json:"preferred_channel,omitempty"`
	Deprecated       bool             `json:"deprecated,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsSelf reports whether c is the graph owner.
func (c Contact) IsSelf() bool {
	return c.ID == SelfID
}

// Name returns the display name, or the ID when no name is known.
func (c Contact) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.ID
}

// ContactPatch is a user-initiated mutation. Nil fields are left untouched.
type ContactPatch struct {
	DisplayName      *string           `json:"display_name,omitempty"`
	RelationshipType *RelationshipType `json:"relationship_type,omitempty"`
	Importance       *float64          `json:"importance_score,omitempty"`
	IsVIP            *bool             `json:"is_vip,omitempty"`
	PreferredChannel *string           `json:"preferred_channel,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ContactPatch) Empty() bool {
	return p.DisplayName == nil && p.RelationshipType == nil && p.Importance == nil &&
		p.IsVIP == nil && p.PreferredChannel == nil
}

// Validate checks the patch without applying it.
func (p ContactPatch) Validate() error {
	if p.Importance != nil {
		if err := validImportance(*p.Importance); err != nil {
			return err
		}
	}
	if p.RelationshipType != nil && !p.RelationshipType.Valid() {
		return fmt.Errorf("%w: unknown relationship_type %q", ErrInvalidMutation, *p.RelationshipType)
	}
	return nil
}

// Apply returns c with the patch applied. It does not validate.
func (p ContactPatch) Apply(c Contact) Contact {
	if p.DisplayName != nil {
		c.DisplayName = *p.DisplayName
	}
	if p.RelationshipType != nil {
		c.RelationshipType = *p.RelationshipType
	}
	if p.Importance != nil {
		c.Importance = *p.Importance
	}
	if p.IsVIP != nil {
		c.IsVIP = *p.IsVIP
	}
	if p.PreferredChannel != nil {
		c.PreferredChannel = *p.PreferredChannel
	}
	return c
}

// Adjustment is a bounded automatic importance change for one contact.
type Adjustment struct {
	ContactID string  `json:"contact_id"`
	Delta     float64 `json:"delta"`
	Reason    string  `json:"reason,omitempty"`
}

func validImportance(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: importance_score %v outside [0,1]", ErrInvalidMutation, v)
	}
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func newSelf(now time.Time) *Contact {
	return &Contact{
		ID:               SelfID,
		DisplayName:      "You",
		RelationshipType: Owner,
		Importance:       1.0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
