package store

import (
	"context"
	"fmt"
	"time"
)

// GrantAdministrator makes mxid a team administrator. Granting an existing
// administrator again is a no-op.
func (s *Store) GrantAdministrator(ctx context.Context, mxid, grantedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO administrators (mxid, granted_by, granted_at)
		VALUES (?, ?, ?)
		ON CONFLICT (mxid) DO NOTHING
	`, mxid, grantedBy, time.Now())
	if err != nil {
		return fmt.Errorf("failed to grant administrator: %w", err)
	}
	return nil
}

// IsAdministrator reports whether mxid is a team administrator.
func (s *Store) IsAdministrator(ctx context.Context, mxid string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM administrators WHERE mxid = ?
	`, mxid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check administrator: %w", err)
	}
	return n > 0, nil
}

// IsActivePlayer reports whether mxid belongs to an active roster entry.
// Injured players still count: they keep their player commands while they
// recover.
func (s *Store) IsActivePlayer(ctx context.Context, mxid string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM players
		WHERE mxid = ? AND status IN (?, ?)
	`, mxid, PlayerActive, PlayerInjured).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check player membership: %w", err)
	}
	return n > 0, nil
}
