package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Match venues.
const (
	VenueHome = "home"
	VenueAway = "away"
)

// Match represents one scheduled fixture.
type Match struct {
	ID        string
	Opponent  string
	Venue     string
	Kickoff   time.Time
	CreatedBy string
	CreatedAt time.Time
}

// CreateMatch schedules a fixture and assigns it an ID.
func (s *Store) CreateMatch(ctx context.Context, m *Match) error {
	if m.ID == "" {
		m.ID = newID("m")
	}
	m.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (id, opponent, venue, kickoff, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.Opponent, m.Venue, m.Kickoff, m.CreatedBy, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

// GetMatch retrieves a match by ID.
func (s *Store) GetMatch(ctx context.Context, id string) (*Match, error) {
	m := &Match{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, opponent, venue, kickoff, created_by, created_at
		FROM matches WHERE id = ?
	`, id).Scan(&m.ID, &m.Opponent, &m.Venue, &m.Kickoff, &m.CreatedBy, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// ListUpcomingMatches returns matches with a kickoff at or after now,
// soonest first. A non-positive limit returns all of them.
func (s *Store) ListUpcomingMatches(ctx context.Context, now time.Time, limit int) ([]*Match, error) {
	query := `
		SELECT id, opponent, venue, kickoff, created_by, created_at
		FROM matches
		WHERE kickoff >= ?
		ORDER BY kickoff ASC`
	args := []any{now}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []*Match
	for rows.Next() {
		m := &Match{}
		if err := rows.Scan(&m.ID, &m.Opponent, &m.Venue, &m.Kickoff, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}
	return matches, nil
}

// NextMatch returns the soonest upcoming match.
func (s *Store) NextMatch(ctx context.Context, now time.Time) (*Match, error) {
	matches, err := s.ListUpcomingMatches(ctx, now, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("next match: %w", ErrNotFound)
	}
	return matches[0], nil
}

// UpcomingMatchCount returns the number of matches with a kickoff after now.
func (s *Store) UpcomingMatchCount(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM matches WHERE kickoff > ?
	`, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count upcoming matches: %w", err)
	}
	return count, nil
}
