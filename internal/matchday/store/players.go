package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Player statuses. A pending player is an open registration awaiting an
// administrator's decision; only active players count for availability and
// entity classification.
const (
	PlayerPending  = "pending"
	PlayerActive   = "active"
	PlayerInjured  = "injured"
	PlayerInactive = "inactive"
	PlayerRejected = "rejected"
)

// Player represents one roster entry.
type Player struct {
	ID             string
	MXID           sql.NullString
	DisplayName    string
	Position       sql.NullString
	Status         string
	RegisteredBy   sql.NullString
	DecidedBy      sql.NullString
	DecisionReason sql.NullString
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

const playerColumns = `id, mxid, display_name, position, status,
	registered_by, decided_by, decision_reason, created_at, updated_at`

func scanPlayer(row interface{ Scan(...any) error }) (*Player, error) {
	p := &Player{}
	err := row.Scan(
		&p.ID, &p.MXID, &p.DisplayName, &p.Position, &p.Status,
		&p.RegisteredBy, &p.DecidedBy, &p.DecisionReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePlayer inserts a new roster entry and assigns it an ID. Status
// defaults to pending when unset.
func (s *Store) CreatePlayer(ctx context.Context, p *Player) error {
	if p.ID == "" {
		p.ID = newID("p")
	}
	if p.Status == "" {
		p.Status = PlayerPending
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (`+playerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.MXID, p.DisplayName, p.Position, p.Status,
		p.RegisteredBy, p.DecidedBy, p.DecisionReason, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

// GetPlayer retrieves a player by ID.
func (s *Store) GetPlayer(ctx context.Context, id string) (*Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `
		SELECT `+playerColumns+` FROM players WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

// GetPlayerByMXID retrieves a player by chat user ID.
func (s *Store) GetPlayerByMXID(ctx context.Context, mxid string) (*Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `
		SELECT `+playerColumns+` FROM players WHERE mxid = ?
	`, mxid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player for %s: %w", mxid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player by mxid: %w", err)
	}
	return p, nil
}

// ListPlayers returns roster entries, optionally filtered by status. An
// empty status returns every entry.
func (s *Store) ListPlayers(ctx context.Context, status string) ([]*Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY display_name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players: %w", err)
	}
	return players, nil
}

// UpdatePlayerStatus changes a player's status.
func (s *Store) UpdatePlayerStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE players SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update player status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return nil
}

// DecideRegistration resolves a pending registration: approved moves the
// player to active, otherwise the entry is marked rejected with the reason.
func (s *Store) DecideRegistration(ctx context.Context, id, decidedBy string, approved bool, reason string) error {
	status := PlayerRejected
	if approved {
		status = PlayerActive
	}

	var reasonNull sql.NullString
	if reason != "" {
		reasonNull = sql.NullString{String: reason, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE players
		SET status = ?, decided_by = ?, decision_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, decidedBy, reasonNull, time.Now(), id, PlayerPending)
	if err != nil {
		return fmt.Errorf("failed to decide registration: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check decision result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("pending registration %s: %w", id, ErrNotFound)
	}
	return nil
}

// PlayerCount returns the number of players in the given status, or all
// players when status is empty.
func (s *Store) PlayerCount(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM players`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count players: %w", err)
	}
	return count, nil
}
