package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/graph"
)

// AppendInteraction journals a validated interaction. It reports false
// without error when the user's journal already holds the raw_ref.
func (db *DB) AppendInteraction(ctx context.Context, userID string, in graph.Interaction) (bool, error) {
	var participants sql.NullString
	if len(in.Participants) > 0 {
		data, err := json.Marshal(in.Participants)
		if err != nil {
			return false, fmt.Errorf("encode participants: %w", err)
		}
		participants = sql.NullString{String: string(data), Valid: true}
	}
	var latency sql.NullFloat64
	if in.ResponseLatency != nil {
		latency = sql.NullFloat64{Float64: *in.ResponseLatency, Valid: true}
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO interactions (user_id, raw_ref, from_contact, to_contact, channel, ts,
			sentiment, response_latency_s, participants, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, raw_ref) DO NOTHING
	`, userID, in.RawRef, in.From, in.To, in.Channel, toNanos(in.Timestamp),
		in.Sentiment, latency, participants, time.Now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("append interaction: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append interaction: %w", err)
	}
	return n > 0, nil
}

// LoadInteractions streams a user's journal in ingest order.
func (db *DB) LoadInteractions(ctx context.Context, userID string, fn func(graph.Interaction) error) error {
	rows, err := db.QueryContext(ctx, `
		SELECT raw_ref, from_contact, to_contact, channel, ts, sentiment, response_latency_s, participants
		FROM interactions WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var in graph.Interaction
		var ts sql.NullInt64
		var latency sql.NullFloat64
		var participants sql.NullString
		if err := rows.Scan(&in.RawRef, &in.From, &in.To, &in.Channel, &ts,
			&in.Sentiment, &latency, &participants); err != nil {
			return fmt.Errorf("scan interaction: %w", err)
		}
		in.Timestamp = fromNanos(ts)
		if latency.Valid {
			v := latency.Float64
			in.ResponseLatency = &v
		}
		if participants.Valid && participants.String != "" {
			if err := json.Unmarshal([]byte(participants.String), &in.Participants); err != nil {
				return fmt.Errorf("decode participants for %s: %w", in.RawRef, err)
			}
		}
		if err := fn(in); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountInteractions returns the number of journaled interactions for a user.
func (db *DB) CountInteractions(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM interactions WHERE user_id = ?", userID).Scan(&n)
	return n, err
}

// Users returns every user with journaled state, sorted.
func (db *DB) Users(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id FROM interactions
		UNION
		SELECT user_id FROM contacts
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
