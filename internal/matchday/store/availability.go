package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Availability is one player's recorded answer for one match.
type Availability struct {
	MatchID    string
	PlayerID   string
	Available  bool
	Note       sql.NullString
	RecordedAt time.Time
}

// RecordAvailability stores or replaces a player's answer for a match.
// Re-recording overwrites the previous answer; the latest word wins.
func (s *Store) RecordAvailability(ctx context.Context, matchID, playerID string, available bool, note string) error {
	var noteNull sql.NullString
	if note != "" {
		noteNull = sql.NullString{String: note, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO availability (match_id, player_id, available, note, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (match_id, player_id) DO UPDATE SET
			available = excluded.available,
			note = excluded.note,
			recorded_at = excluded.recorded_at
	`, matchID, playerID, available, noteNull, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record availability: %w", err)
	}
	return nil
}

// ListAvailability returns every recorded answer for a match, available
// players first.
func (s *Store) ListAvailability(ctx context.Context, matchID string) ([]*Availability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, player_id, available, note, recorded_at
		FROM availability
		WHERE match_id = ?
		ORDER BY available DESC, recorded_at ASC
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	defer rows.Close()

	var entries []*Availability
	for rows.Next() {
		a := &Availability{}
		if err := rows.Scan(&a.MatchID, &a.PlayerID, &a.Available, &a.Note, &a.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan availability: %w", err)
		}
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating availability: %w", err)
	}
	return entries, nil
}
