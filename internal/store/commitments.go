package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lazypower/rapport/internal/engine"
)

// SaveCommitment upserts a commitment from the collaborator feed, assigning
// an ID when the item carries none. It returns the stored commitment, or
// engine.ErrCommitmentConflict when the ID is another user's.
func (db *DB) SaveCommitment(ctx context.Context, userID string, c engine.Commitment) (engine.Commitment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = engine.CommitmentActive
	}
	if !c.Status.Valid() {
		return c, fmt.Errorf("save commitment: unknown status %q", c.Status)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var deadline sql.NullInt64
	if c.Deadline != nil {
		deadline = toNanos(*c.Deadline)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO commitments (id, user_id, contact_id, description, deadline, status, severity, channel, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)
		ON CONFLICT (id) DO UPDATE SET
			contact_id = excluded.contact_id,
			description = excluded.description,
			deadline = excluded.deadline,
			status = excluded.status,
			severity = excluded.severity,
			channel = excluded.channel
		WHERE commitments.user_id = excluded.user_id
	`, c.ID, userID, c.ContactID, c.Description, deadline, string(c.Status), c.Severity, c.Channel, toNanos(c.CreatedAt))
	if err != nil {
		return c, fmt.Errorf("save commitment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return c, fmt.Errorf("save commitment: %w", err)
	}
	if n == 0 {
		return c, fmt.Errorf("save commitment %s: %w", c.ID, engine.ErrCommitmentConflict)
	}
	return c, nil
}

// OverdueCommitments returns a user's open commitments that are past their
// deadline at now, or explicitly marked overdue, earliest deadline first.
func (db *DB) OverdueCommitments(ctx context.Context, userID string, now time.Time) ([]engine.Commitment, error) {
	return db.queryCommitments(ctx, `
		SELECT id, contact_id, description, deadline, status, severity, channel, created_at
		FROM commitments
		WHERE user_id = ?
		  AND (status = 'overdue' OR (status = 'active' AND deadline IS NOT NULL AND deadline < ?))
		ORDER BY deadline IS NULL, deadline, id
	`, userID, toNanos(now))
}

// CommitmentsForContact returns up to limit commitments linked to a contact,
// most recently created first.
func (db *DB) CommitmentsForContact(ctx context.Context, userID, contactID string, limit int) ([]engine.Commitment, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.queryCommitments(ctx, `
		SELECT id, contact_id, description, deadline, status, severity, channel, created_at
		FROM commitments
		WHERE user_id = ? AND contact_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`, userID, contactID, limit)
}

func (db *DB) queryCommitments(ctx context.Context, query string, args ...any) ([]engine.Commitment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query commitments: %w", err)
	}
	defer rows.Close()

	out := []engine.Commitment{}
	for rows.Next() {
		var c engine.Commitment
		var status string
		var deadline sql.NullInt64
		var channel sql.NullString
		var created sql.NullInt64
		if err := rows.Scan(&c.ID, &c.ContactID, &c.Description, &deadline, &status,
			&c.Severity, &channel, &created); err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		c.Status = engine.CommitmentStatus(status)
		if deadline.Valid {
			t := fromNanos(deadline)
			c.Deadline = &t
		}
		c.Channel = channel.String
		c.CreatedAt = fromNanos(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
