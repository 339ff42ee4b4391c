package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/graph"
)

// SaveContact upserts a user-edited contact record.
func (db *DB) SaveContact(ctx context.Context, userID string, c graph.Contact) error {
	vip, deprecated := 0, 0
	if c.IsVIP {
		vip = 1
	}
	if c.Deprecated {
		deprecated = 1
	}
	rel := c.RelationshipType
	if !rel.Valid() {
		rel = graph.Other
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO contacts (user_id, contact_id, display_name, relationship_type, importance,
			is_vip, preferred_channel, deprecated, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)
		ON CONFLICT (user_id, contact_id) DO UPDATE SET
			display_name = excluded.display_name,
			relationship_type = excluded.relationship_type,
			importance = excluded.importance,
			is_vip = excluded.is_vip,
			preferred_channel = excluded.preferred_channel,
			deprecated = excluded.deprecated,
			updated_at = excluded.updated_at
	`, userID, c.ID, c.DisplayName, string(rel), c.Importance,
		vip, c.PreferredChannel, deprecated, toNanos(c.CreatedAt), toNanos(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save contact: %w", err)
	}
	return nil
}

// LoadContacts returns a user's saved contacts sorted by ID.
func (db *DB) LoadContacts(ctx context.Context, userID string) ([]graph.Contact, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT contact_id, display_name, relationship_type, importance, is_vip,
			preferred_channel, deprecated, created_at, updated_at
		FROM contacts WHERE user_id = ? ORDER BY contact_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []graph.Contact
	for rows.Next() {
		var c graph.Contact
		var rel string
		var vip, deprecated int
		var channel sql.NullString
		var created, updated sql.NullInt64
		if err := rows.Scan(&c.ID, &c.DisplayName, &rel, &c.Importance, &vip,
			&channel, &deprecated, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.RelationshipType = graph.ParseRelationshipType(rel)
		c.IsVIP = vip != 0
		c.Deprecated = deprecated != 0
		c.PreferredChannel = channel.String
		c.CreatedAt = fromNanos(created)
		c.UpdatedAt = fromNanos(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}
