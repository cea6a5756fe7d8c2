package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/matchdaybot/matchday/internal/matchday/chat"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPlayerLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := &Player{
		MXID:         sql.NullString{String: "@kit:example.org", Valid: true},
		DisplayName:  "Kit Hartley",
		Position:     sql.NullString{String: "striker", Valid: true},
		RegisteredBy: sql.NullString{String: "@kit:example.org", Valid: true},
	}
	if err := s.CreatePlayer(ctx, p); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if p.ID == "" {
		t.Fatal("CreatePlayer did not assign an ID")
	}
	if p.Status != PlayerPending {
		t.Errorf("default status: got %q, want %q", p.Status, PlayerPending)
	}

	// Pending players are not yet members for classification purposes.
	isPlayer, err := s.IsActivePlayer(ctx, "@kit:example.org")
	if err != nil {
		t.Fatalf("IsActivePlayer: %v", err)
	}
	if isPlayer {
		t.Error("pending registration must not count as an active player")
	}

	if err := s.DecideRegistration(ctx, p.ID, "@manager:example.org", true, ""); err != nil {
		t.Fatalf("DecideRegistration: %v", err)
	}

	got, err := s.GetPlayer(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if got.Status != PlayerActive {
		t.Errorf("status after approval: got %q, want %q", got.Status, PlayerActive)
	}
	if got.DecidedBy.String != "@manager:example.org" {
		t.Errorf("DecidedBy: got %q", got.DecidedBy.String)
	}

	isPlayer, err = s.IsActivePlayer(ctx, "@kit:example.org")
	if err != nil {
		t.Fatalf("IsActivePlayer: %v", err)
	}
	if !isPlayer {
		t.Error("approved player must count as an active player")
	}

	// Deciding the same registration twice must fail: it is no longer
	// pending.
	err = s.DecideRegistration(ctx, p.ID, "@manager:example.org", false, "changed my mind")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("second decision: got %v, want ErrNotFound", err)
	}

	if err := s.UpdatePlayerStatus(ctx, p.ID, PlayerInjured); err != nil {
		t.Fatalf("UpdatePlayerStatus: %v", err)
	}
	isPlayer, _ = s.IsActivePlayer(ctx, "@kit:example.org")
	if !isPlayer {
		t.Error("injured player must keep player membership")
	}
}

func TestRejectRegistration(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := &Player{DisplayName: "Sam Doyle"}
	if err := s.CreatePlayer(ctx, p); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if err := s.DecideRegistration(ctx, p.ID, "@manager:example.org", false, "roster full"); err != nil {
		t.Fatalf("DecideRegistration: %v", err)
	}

	got, err := s.GetPlayer(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if got.Status != PlayerRejected {
		t.Errorf("status: got %q, want %q", got.Status, PlayerRejected)
	}
	if got.DecisionReason.String != "roster full" {
		t.Errorf("DecisionReason: got %q", got.DecisionReason.String)
	}
}

func TestListPlayersByStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, spec := range []struct{ name, status string }{
		{"Alice", PlayerActive},
		{"Bob", PlayerPending},
		{"Cara", PlayerActive},
	} {
		p := &Player{DisplayName: spec.name, Status: spec.status}
		if err := s.CreatePlayer(ctx, p); err != nil {
			t.Fatalf("CreatePlayer(%s): %v", spec.name, err)
		}
	}

	active, err := s.ListPlayers(ctx, PlayerActive)
	if err != nil {
		t.Fatalf("ListPlayers: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active players: got %d, want 2", len(active))
	}
	if active[0].DisplayName != "Alice" || active[1].DisplayName != "Cara" {
		t.Errorf("ordering: got %q, %q", active[0].DisplayName, active[1].DisplayName)
	}

	all, err := s.ListPlayers(ctx, "")
	if err != nil {
		t.Fatalf("ListPlayers(all): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all players: got %d, want 3", len(all))
	}
}

func TestMatchesAndAvailability(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	past := &Match{Opponent: "Old Boys", Venue: VenueHome, Kickoff: now.Add(-48 * time.Hour), CreatedBy: "@manager:example.org"}
	next := &Match{Opponent: "Rovers", Venue: VenueAway, Kickoff: now.Add(24 * time.Hour), CreatedBy: "@manager:example.org"}
	later := &Match{Opponent: "United", Venue: VenueHome, Kickoff: now.Add(7 * 24 * time.Hour), CreatedBy: "@manager:example.org"}
	for _, m := range []*Match{past, next, later} {
		if err := s.CreateMatch(ctx, m); err != nil {
			t.Fatalf("CreateMatch(%s): %v", m.Opponent, err)
		}
	}

	upcoming, err := s.ListUpcomingMatches(ctx, now, 0)
	if err != nil {
		t.Fatalf("ListUpcomingMatches: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("upcoming: got %d, want 2", len(upcoming))
	}
	if upcoming[0].Opponent != "Rovers" {
		t.Errorf("ordering: got %q first", upcoming[0].Opponent)
	}

	nm, err := s.NextMatch(ctx, now)
	if err != nil {
		t.Fatalf("NextMatch: %v", err)
	}
	if nm.ID != next.ID {
		t.Errorf("NextMatch: got %s, want %s", nm.ID, next.ID)
	}

	p := &Player{DisplayName: "Kit Hartley", Status: PlayerActive}
	if err := s.CreatePlayer(ctx, p); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}

	if err := s.RecordAvailability(ctx, next.ID, p.ID, true, "can drive"); err != nil {
		t.Fatalf("RecordAvailability: %v", err)
	}
	// The latest answer wins.
	if err := s.RecordAvailability(ctx, next.ID, p.ID, false, "work shift"); err != nil {
		t.Fatalf("RecordAvailability(update): %v", err)
	}

	entries, err := s.ListAvailability(ctx, next.ID)
	if err != nil {
		t.Fatalf("ListAvailability: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("availability entries: got %d, want 1", len(entries))
	}
	if entries[0].Available {
		t.Error("latest answer (unavailable) must win")
	}
	if entries[0].Note.String != "work shift" {
		t.Errorf("note: got %q", entries[0].Note.String)
	}
}

func TestAdministrators(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	isAdmin, err := s.IsAdministrator(ctx, "@kit:example.org")
	if err != nil {
		t.Fatalf("IsAdministrator: %v", err)
	}
	if isAdmin {
		t.Error("unknown member must not be an administrator")
	}

	if err := s.GrantAdministrator(ctx, "@kit:example.org", "@founder:example.org"); err != nil {
		t.Fatalf("GrantAdministrator: %v", err)
	}
	// Idempotent.
	if err := s.GrantAdministrator(ctx, "@kit:example.org", "@founder:example.org"); err != nil {
		t.Fatalf("GrantAdministrator(repeat): %v", err)
	}

	isAdmin, err = s.IsAdministrator(ctx, "@kit:example.org")
	if err != nil {
		t.Fatalf("IsAdministrator: %v", err)
	}
	if !isAdmin {
		t.Error("granted member must be an administrator")
	}
}

func TestResolveChatType(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.UpsertChat(ctx, "!main:example.org", chat.TypeMain); err != nil {
		t.Fatalf("UpsertChat: %v", err)
	}
	if err := s.UpsertChat(ctx, "!leads:example.org", chat.TypeLeadership); err != nil {
		t.Fatalf("UpsertChat: %v", err)
	}

	got, err := s.ResolveChatType(ctx, "!main:example.org")
	if err != nil {
		t.Fatalf("ResolveChatType: %v", err)
	}
	if got != chat.TypeMain {
		t.Errorf("chat type: got %q, want %q", got, chat.TypeMain)
	}

	_, err = s.ResolveChatType(ctx, "!stranger:example.org")
	if !errors.Is(err, chat.ErrUnknownChat) {
		t.Errorf("unknown chat: got %v, want ErrUnknownChat", err)
	}

	// Re-registering with a different type updates in place.
	if err := s.UpsertChat(ctx, "!main:example.org", chat.TypePrivate); err != nil {
		t.Fatalf("UpsertChat(update): %v", err)
	}
	got, _ = s.ResolveChatType(ctx, "!main:example.org")
	if got != chat.TypePrivate {
		t.Errorf("updated chat type: got %q", got)
	}

	if err := s.UpsertChat(ctx, "!bad:example.org", chat.TypeUnknown); err == nil {
		t.Error("UpsertChat must reject the unknown type")
	}
}

func TestAuditTrail(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	entry := &AuditEntry{
		TraceID:   "t_abc123",
		ActorMXID: "@kit:example.org",
		ChatID:    "!main:example.org",
		Action:    "status",
		Status:    "SUCCESS",
		ToolCalls: []string{"get_player_status"},
	}
	if err := s.WriteAudit(ctx, entry); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if err := s.WriteAudit(ctx, &AuditEntry{
		TraceID:   "t_abc123",
		ActorMXID: "@kit:example.org",
		ChatID:    "!main:example.org",
		Action:    "promote",
		Status:    "PERMISSION_DENIED",
	}); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}

	entries, err := s.GetAuditByTrace(ctx, "t_abc123")
	if err != nil {
		t.Fatalf("GetAuditByTrace: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	if len(entries[0].ToolCalls) != 1 || entries[0].ToolCalls[0] != "get_player_status" {
		t.Errorf("ToolCalls: got %v", entries[0].ToolCalls)
	}
	if entries[1].ToolCalls != nil {
		t.Errorf("denied run must record no tool calls, got %v", entries[1].ToolCalls)
	}

	recent, err := s.GetAuditLog(ctx, 10)
	if err != nil {
		t.Fatalf("GetAuditLog: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("recent entries: got %d, want 2", len(recent))
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.runMigrations(); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}
