package engine

import (
	"context"
	"errors"
	"time"
)

// ErrCommitmentConflict is returned when a commitment ID is already taken
// by another user's commitment.
var ErrCommitmentConflict = errors.New("commitment id belongs to another user")

// CommitmentStatus is the lifecycle state reported by the commitment
// tracker.
type CommitmentStatus string

const (
	CommitmentActive    CommitmentStatus = "active"
	CommitmentOverdue   CommitmentStatus = "overdue"
	CommitmentFulfilled CommitmentStatus = "fulfilled"
	CommitmentCancelled CommitmentStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s CommitmentStatus) Valid() bool {
	switch s {
	case CommitmentActive, CommitmentOverdue, CommitmentFulfilled, CommitmentCancelled:
		return true
	}
	return false
}

// Commitment is an item supplied by the commitment-tracking collaborator.
// Severity is pre-scored upstream.
type Commitment struct {
	ID          string           `json:"id"`
	ContactID   string           `json:"contact_id" validate:"required,max=256"`
	Description string           `json:"description" validate:"max=2000"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	Status      CommitmentStatus `json:"status"`
	Severity    float64          `json:"severity" validate:"gte=0,lte=1"`
	Channel     string           `json:"channel,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Open reports whether the commitment still needs doing.
func (c Commitment) Open() bool {
	return c.Status == CommitmentActive || c.Status == CommitmentOverdue
}

// Overdue reports whether the commitment is open and past its deadline.
func (c Commitment) Overdue(now time.Time) bool {
	if !c.Open() {
		return false
	}
	if c.Status == CommitmentOverdue {
		return true
	}
	return c.Deadline != nil && c.Deadline.Before(now)
}

// CommitmentFeed supplies commitments for the attention feed and contact
// detail.
type CommitmentFeed interface {
	OverdueCommitments(ctx context.Context, userID string, now time.Time) ([]Commitment, error)
	CommitmentsForContact(ctx context.Context, userID, contactID string, limit int) ([]Commitment, error)
}
