// Package tools implements the invokable tools behind the handler catalog.
//
// A tool is a thin, side-effect-scoped wrapper over the store (or the chat
// transport, for announcements). Tools never call other tools and never
// consult the handler catalog; authorization happens entirely in the caller
// before Call is reached.
package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/matchdaybot/matchday/internal/matchday/chat"
	"github.com/matchdaybot/matchday/internal/matchday/store"
)

// ErrUnknownTool is returned by Call for a tool name outside the catalog.
var ErrUnknownTool = errors.New("tools: unknown tool")

// ErrBadArguments is returned when a tool's argument JSON is missing a
// required field or fails to parse.
var ErrBadArguments = errors.New("tools: bad arguments")

// Caller identifies who a tool runs on behalf of. Tools that act on "my"
// data (own status, own availability) resolve the player record through the
// caller's sender ID.
type Caller struct {
	SenderID string
	ChatType chat.Type
}

// CommandInfo is one entry in a command listing.
type CommandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage,omitempty"`
}

// CommandLister supplies the commands usable in a given chat type. The
// catalog itself lives outside this package; only the listing crosses the
// boundary.
type CommandLister interface {
	UsableCommands(chatType chat.Type) []CommandInfo
}

// Announcer posts a message to the main team chat.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// Invoker dispatches tool calls by name.
type Invoker struct {
	store     *store.Store
	commands  CommandLister
	announcer Announcer
	now       func() time.Time
}

// New returns an Invoker over the given dependencies. now may be nil, in
// which case time.Now is used.
func New(st *store.Store, commands CommandLister, announcer Announcer, now func() time.Time) *Invoker {
	if now == nil {
		now = time.Now
	}
	return &Invoker{store: st, commands: commands, announcer: announcer, now: now}
}

type toolFunc func(ctx context.Context, inv *Invoker, caller Caller, args json.RawMessage) (any, error)

var catalog = map[string]toolFunc{
	"get_my_commands":      getMyCommands,
	"get_player_list":      getPlayerList,
	"get_player_status":    getPlayerStatus,
	"get_match_list":       getMatchList,
	"get_availability":     getAvailability,
	"add_player":           addPlayer,
	"update_player_status": updatePlayerStatus,
	"approve_player":       approvePlayer,
	"grant_administrator":  grantAdministrator,
	"create_match":         createMatch,
	"record_availability":  recordAvailability,
	"send_team_message":    sendTeamMessage,
}

// Call invokes the named tool and returns its JSON-encoded result.
func (inv *Invoker) Call(ctx context.Context, name string, argsJSON string, caller Caller) (string, error) {
	fn, ok := catalog[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	args := json.RawMessage(argsJSON)
	if argsJSON == "" {
		args = json.RawMessage("{}")
	}

	result, err := fn(ctx, inv, caller, args)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("tools: encode %s result: %w", name, err)
	}
	return string(data), nil
}

// Has reports whether name is in the catalog.
func (inv *Invoker) Has(name string) bool {
	_, ok := catalog[name]
	return ok
}

func decodeArgs(args json.RawMessage, into any) error {
	if err := json.Unmarshal(args, into); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	return nil
}

// --- tool implementations ---

func getMyCommands(_ context.Context, inv *Invoker, caller Caller, _ json.RawMessage) (any, error) {
	return map[string]any{
		"commands": inv.commands.UsableCommands(caller.ChatType),
	}, nil
}

func getPlayerList(ctx context.Context, inv *Invoker, _ Caller, args json.RawMessage) (any, error) {
	var in struct {
		Status string `json:"status,omitempty"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	players, err := inv.store.ListPlayers(ctx, in.Status)
	if err != nil {
		return nil, err
	}

	type entry struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Position    string `json:"position,omitempty"`
		Status      string `json:"status"`
	}
	out := make([]entry, 0, len(players))
	for _, p := range players {
		out = append(out, entry{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Position:    p.Position.String,
			Status:      p.Status,
		})
	}
	return map[string]any{"players": out}, nil
}

func getPlayerStatus(ctx context.Context, inv *Invoker, caller Caller, args json.RawMessage) (any, error) {
	var in struct {
		PlayerID string `json:"player_id,omitempty"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	var p *store.Player
	var err error
	if in.PlayerID != "" {
		p, err = inv.store.GetPlayer(ctx, in.PlayerID)
	} else {
		p, err = inv.store.GetPlayerByMXID(ctx, caller.SenderID)
	}
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"id":          p.ID,
		"displayName": p.DisplayName,
		"position":    p.Position.String,
		"status":      p.Status,
		"registered":  p.CreatedAt.Format(time.RFC3339),
	}, nil
}

func getMatchList(ctx context.Context, inv *Invoker, _ Caller, args json.RawMessage) (any, error) {
	var in struct {
		Limit int `json:"limit,omitempty"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	matches, err := inv.store.ListUpcomingMatches(ctx, inv.now(), in.Limit)
	if err != nil {
		return nil, err
	}

	type entry struct {
		ID       string `json:"id"`
		Opponent string `json:"opponent"`
		Venue    string `json:"venue"`
		Kickoff  string `json:"kickoff"`
	}
	out := make([]entry, 0, len(matches))
	for _, m := range matches {
		out = append(out, entry{
			ID:       m.ID,
			Opponent: m.Opponent,
			Venue:    m.Venue,
			Kickoff:  m.Kickoff.Format(time.RFC3339),
		})
	}
	return map[string]any{"matches": out}, nil
}

func getAvailability(ctx context.Context, inv *Invoker, _ Caller, args json.RawMessage) (any, error) {
	var in struct {
		MatchID string `json:"match_id,omitempty"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	matchID := in.MatchID
	if matchID == "" {
		next, err := inv.store.NextMatch(ctx, inv.now())
		if err != nil {
			return nil, err
		}
		matchID = next.ID
	}

	entries, err := inv.store.ListAvailability(ctx, matchID)
	if err != nil {
		return nil, err
	}

	type entry struct {
		PlayerID  string `json:"playerId"`
		Available bool   `json:"available"`
		Note      string `json:"note,omitempty"`
	}
	out := make([]entry, 0, len(entries))
	for _, a := range entries {
		out = append(out, entry{PlayerID: a.PlayerID, Available: a.Available, Note: a.Note.String})
	}
	return map[string]any{"matchId": matchID, "availability": out}, nil
}

func addPlayer(ctx context.Context, inv *Invoker, caller Caller, args json.RawMessage) (any, error) {
	var in struct {
		DisplayName string `json:"display_name"`
		Position    string `json:"position,omitempty"`
		MXID        string `json:"mxid,omitempty"`
		// Pending marks the entry as a registration awaiting approval
		// instead of adding the player directly.
		Pending bool `json:"pending,omitempty"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.DisplayName == "" {
		return nil, fmt.Errorf("%w: display_name is required", ErrBadArguments)
	}

	p := &store.Player{
		DisplayName:  in.DisplayName,
		RegisteredBy: nullString(caller.SenderID),
		Position:     nullString(in.Position),
		MXID:         nullString(in.MXID),
	}
	if !in.Pending {
		p.Status = store.PlayerActive
	}
	if err := inv.store.CreatePlayer(ctx, p); err != nil {
		return nil, err
	}
	return map[string]any{"id": p.ID, "status": p.Status}, nil
}

func updatePlayerStatus(ctx context.Context, inv *Invoker, _ Caller, args json.RawMessage) (any, error) {
	var in struct {
		PlayerID string `json:"player_id"`
		Status   string `json:"status"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.PlayerID == "" || in.Status == "" {
		return nil, fmt.Errorf("%w: player_id and status are required", ErrBadArguments)
	}
	switch in.Status {
	case store.PlayerActive, store.PlayerInjured, store.PlayerInactive:
	default:
		return nil, fmt.Errorf("%w: status must be active, injured, or inactive", ErrBadArguments)
	}

	if err := inv.store.UpdatePlayerStatus(ctx, in.PlayerID, in.Status); err != nil {
		return nil, err
	}
	return map[string]any{"id": in.PlayerID, "status": in.Status}, nil
}

func approvePlayer(ctx context.Context, inv *Invoker, caller Caller, args json.RawMessage) (any, error) {
	var in struct {
		RegistrationID string `json:"registration_id"`
		Approved       bool   `json:"approved"`
		Reason         string `json:"reason,omitempty"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.RegistrationID == "" {
		return nil, fmt.Errorf("%w: registration_id is required", ErrBadArguments)
	}
	if !in.Approved && in.Reason == "" {
		return nil, fmt.Errorf("%w: a rejection needs a reason", ErrBadArguments)
	}

	if err := inv.store.DecideRegistration(ctx, in.RegistrationID, caller.SenderID, in.Approved, in.Reason); err != nil {
		return nil, err
	}
	outcome := "rejected"
	if in.Approved {
		outcome = "approved"
	}
	return map[string]any{"id": in.RegistrationID, "outcome": outcome}, nil
}

func grantAdministrator(ctx context.Context, inv *Invoker, caller Caller, args json.RawMessage) (any, error) {
	var in struct {
		MXID string `json:"mxid"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.MXID == "" {
		return nil, fmt.Errorf("%w: mxid is required", ErrBadArguments)
	}

	if err := inv.store.GrantAdministrator(ctx, in.MXID, caller.SenderID); err != nil {
		return nil, err
	}
	return map[string]any{"mxid": in.MXID, "administrator": true}, nil
}

func createMatch(ctx context.Context, inv *Invoker, caller Caller, args json.RawMessage) (any, error) {
	var in struct {
		Opponent string `json:"opponent"`
		Venue    string `json:"venue"`
		Kickoff  string `json:"kickoff"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Opponent == "" || in.Kickoff == "" {
		return nil, fmt.Errorf("%w: opponent and kickoff are required", ErrBadArguments)
	}
	if in.Venue != store.VenueHome && in.Venue != store.VenueAway {
		return nil, fmt.Errorf("%w: venue must be home or away", ErrBadArguments)
	}
	kickoff, err := time.Parse(time.RFC3339, in.Kickoff)
	if err != nil {
		return nil, fmt.Errorf("%w: kickoff must be RFC 3339, e.g. 2026-09-05T15:00:00Z", ErrBadArguments)
	}

	m := &store.Match{
		Opponent:  in.Opponent,
		Venue:     in.Venue,
		Kickoff:   kickoff,
		CreatedBy: caller.SenderID,
	}
	if err := inv.store.CreateMatch(ctx, m); err != nil {
		return nil, err
	}
	return map[string]any{"id": m.ID, "kickoff": m.Kickoff.Format(time.RFC3339)}, nil
}

func recordAvailability(ctx context.Context, inv *Invoker, caller Caller, args json.RawMessage) (any, error) {
	var in struct {
		Available bool   `json:"available"`
		MatchID   string `json:"match_id,omitempty"`
		Note      string `json:"note,omitempty"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}

	player, err := inv.store.GetPlayerByMXID(ctx, caller.SenderID)
	if err != nil {
		return nil, err
	}

	matchID := in.MatchID
	if matchID == "" {
		next, err := inv.store.NextMatch(ctx, inv.now())
		if err != nil {
			return nil, err
		}
		matchID = next.ID
	}

	if err := inv.store.RecordAvailability(ctx, matchID, player.ID, in.Available, in.Note); err != nil {
		return nil, err
	}
	return map[string]any{"matchId": matchID, "playerId": player.ID, "available": in.Available}, nil
}

func sendTeamMessage(ctx context.Context, inv *Invoker, _ Caller, args json.RawMessage) (any, error) {
	var in struct {
		Message string `json:"message"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	if in.Message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrBadArguments)
	}
	if inv.announcer == nil {
		return nil, errors.New("tools: no announcer configured")
	}

	if err := inv.announcer.Announce(ctx, in.Message); err != nil {
		return nil, fmt.Errorf("tools: announce: %w", err)
	}
	return map[string]any{"sent": true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
