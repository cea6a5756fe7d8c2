package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/matchdaybot/matchday/internal/matchday/chat"
	"github.com/matchdaybot/matchday/internal/matchday/store"
)

type fakeLister struct{}

func (fakeLister) UsableCommands(t chat.Type) []CommandInfo {
	if t == chat.TypeLeadership {
		return []CommandInfo{{Name: "approve", Description: "Approve a registration."}}
	}
	return []CommandInfo{{Name: "help", Description: "Show commands."}}
}

type fakeAnnouncer struct {
	messages []string
	err      error
}

func (a *fakeAnnouncer) Announce(_ context.Context, text string) error {
	if a.err != nil {
		return a.err
	}
	a.messages = append(a.messages, text)
	return nil
}

func testInvoker(t *testing.T) (*Invoker, *store.Store, *fakeAnnouncer) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ann := &fakeAnnouncer{}
	fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	return New(st, fakeLister{}, ann, func() time.Time { return fixed }), st, ann
}

func addActivePlayer(t *testing.T, st *store.Store, name, mxid string) *store.Player {
	t.Helper()
	p := &store.Player{
		DisplayName: name,
		MXID:        sql.NullString{String: mxid, Valid: mxid != ""},
		Status:      store.PlayerActive,
	}
	if err := st.CreatePlayer(context.Background(), p); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	return p
}

func call(t *testing.T, inv *Invoker, name, args string, caller Caller) map[string]any {
	t.Helper()
	raw, err := inv.Call(context.Background(), name, args, caller)
	if err != nil {
		t.Fatalf("Call(%s): %v", name, err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("Call(%s) returned invalid JSON: %v", name, err)
	}
	return out
}

func TestCall_UnknownTool(t *testing.T) {
	inv, _, _ := testInvoker(t)
	_, err := inv.Call(context.Background(), "frobnicate", "{}", Caller{})
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("got %v, want ErrUnknownTool", err)
	}
}

func TestGetMyCommands(t *testing.T) {
	inv, _, _ := testInvoker(t)

	out := call(t, inv, "get_my_commands", "", Caller{ChatType: chat.TypeLeadership})
	cmds := out["commands"].([]any)
	if len(cmds) != 1 {
		t.Fatalf("commands: got %d, want 1", len(cmds))
	}
	first := cmds[0].(map[string]any)
	if first["name"] != "approve" {
		t.Errorf("leadership listing: got %v", first["name"])
	}
}

func TestPlayerTools(t *testing.T) {
	inv, st, _ := testInvoker(t)
	ctx := context.Background()
	caller := Caller{SenderID: "@kit:example.org", ChatType: chat.TypePrivate}

	addActivePlayer(t, st, "Kit Hartley", "@kit:example.org")

	out := call(t, inv, "get_player_status", "{}", caller)
	if out["displayName"] != "Kit Hartley" {
		t.Errorf("own status: got %v", out["displayName"])
	}

	out = call(t, inv, "add_player", `{"display_name":"Sam Doyle","position":"keeper"}`, caller)
	id := out["id"].(string)
	if out["status"] != store.PlayerActive {
		t.Errorf("direct add status: got %v", out["status"])
	}

	out = call(t, inv, "update_player_status", `{"player_id":"`+id+`","status":"injured"}`, caller)
	if out["status"] != store.PlayerInjured {
		t.Errorf("updated status: got %v", out["status"])
	}

	if _, err := inv.Call(ctx, "update_player_status", `{"player_id":"`+id+`","status":"benched"}`, caller); !errors.Is(err, ErrBadArguments) {
		t.Errorf("invalid status: got %v, want ErrBadArguments", err)
	}

	out = call(t, inv, "get_player_list", `{"status":"injured"}`, caller)
	players := out["players"].([]any)
	if len(players) != 1 {
		t.Errorf("injured list: got %d entries", len(players))
	}
}

func TestRegistrationApprovalFlow(t *testing.T) {
	inv, st, _ := testInvoker(t)
	ctx := context.Background()
	admin := Caller{SenderID: "@manager:example.org", ChatType: chat.TypeLeadership}

	out := call(t, inv, "add_player", `{"display_name":"New Kid","mxid":"@kid:example.org","pending":true}`, Caller{SenderID: "@kid:example.org"})
	regID := out["id"].(string)
	if out["status"] != store.PlayerPending {
		t.Fatalf("registration status: got %v", out["status"])
	}

	// Rejections without a reason are refused before touching the store.
	if _, err := inv.Call(ctx, "approve_player", `{"registration_id":"`+regID+`","approved":false}`, admin); !errors.Is(err, ErrBadArguments) {
		t.Errorf("reasonless rejection: got %v, want ErrBadArguments", err)
	}

	out = call(t, inv, "approve_player", `{"registration_id":"`+regID+`","approved":true}`, admin)
	if out["outcome"] != "approved" {
		t.Errorf("outcome: got %v", out["outcome"])
	}

	p, err := st.GetPlayer(ctx, regID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if p.Status != store.PlayerActive {
		t.Errorf("status after approval: got %q", p.Status)
	}
}

func TestGrantAdministrator(t *testing.T) {
	inv, st, _ := testInvoker(t)
	ctx := context.Background()
	admin := Caller{SenderID: "@manager:example.org", ChatType: chat.TypeLeadership}

	if _, err := inv.Call(ctx, "grant_administrator", `{}`, admin); !errors.Is(err, ErrBadArguments) {
		t.Errorf("missing mxid: got %v, want ErrBadArguments", err)
	}

	out := call(t, inv, "grant_administrator", `{"mxid":"@kit:example.org"}`, admin)
	if out["administrator"] != true {
		t.Errorf("result: got %v", out)
	}

	isAdmin, err := st.IsAdministrator(ctx, "@kit:example.org")
	if err != nil {
		t.Fatalf("IsAdministrator: %v", err)
	}
	if !isAdmin {
		t.Error("member must hold administrator rights after the grant")
	}
}

func TestMatchAndAvailabilityTools(t *testing.T) {
	inv, st, _ := testInvoker(t)
	caller := Caller{SenderID: "@kit:example.org", ChatType: chat.TypeMain}
	addActivePlayer(t, st, "Kit Hartley", "@kit:example.org")

	out := call(t, inv, "create_match", `{"opponent":"Rovers","venue":"away","kickoff":"2026-09-05T15:00:00Z"}`, caller)
	matchID := out["id"].(string)

	out = call(t, inv, "get_match_list", "{}", caller)
	matches := out["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("matches: got %d, want 1", len(matches))
	}

	// Omitting match_id targets the next match.
	out = call(t, inv, "record_availability", `{"available":true,"note":"can drive"}`, caller)
	if out["matchId"] != matchID {
		t.Errorf("recorded against %v, want %v", out["matchId"], matchID)
	}

	out = call(t, inv, "get_availability", "{}", caller)
	entries := out["availability"].([]any)
	if len(entries) != 1 {
		t.Fatalf("availability: got %d entries", len(entries))
	}
	entry := entries[0].(map[string]any)
	if entry["available"] != true || entry["note"] != "can drive" {
		t.Errorf("entry: got %v", entry)
	}
}

func TestCreateMatch_Validation(t *testing.T) {
	inv, _, _ := testInvoker(t)
	ctx := context.Background()
	caller := Caller{SenderID: "@manager:example.org"}

	badInputs := []string{
		`{"venue":"home","kickoff":"2026-09-05T15:00:00Z"}`,
		`{"opponent":"Rovers","venue":"neutral","kickoff":"2026-09-05T15:00:00Z"}`,
		`{"opponent":"Rovers","venue":"home","kickoff":"next saturday"}`,
	}
	for _, in := range badInputs {
		if _, err := inv.Call(ctx, "create_match", in, caller); !errors.Is(err, ErrBadArguments) {
			t.Errorf("input %s: got %v, want ErrBadArguments", in, err)
		}
	}
}

func TestSendTeamMessage(t *testing.T) {
	inv, _, ann := testInvoker(t)
	caller := Caller{SenderID: "@manager:example.org"}

	call(t, inv, "send_team_message", `{"message":"Training moved to 7pm"}`, caller)
	if len(ann.messages) != 1 || ann.messages[0] != "Training moved to 7pm" {
		t.Errorf("announced: got %v", ann.messages)
	}

	if _, err := inv.Call(context.Background(), "send_team_message", `{"message":""}`, caller); !errors.Is(err, ErrBadArguments) {
		t.Errorf("empty message: got %v, want ErrBadArguments", err)
	}
}

func TestSpecs(t *testing.T) {
	specs := Specs([]string{"get_match_list", "create_match", "not_a_tool"}, func(name string) string {
		return "desc of " + name
	})
	if len(specs) != 2 {
		t.Fatalf("specs: got %d, want 2", len(specs))
	}
	if specs[0].Name != "get_match_list" || specs[0].Description != "desc of get_match_list" {
		t.Errorf("spec[0]: got %+v", specs[0])
	}
	for _, s := range specs {
		var v any
		if err := json.Unmarshal(s.Parameters, &v); err != nil {
			t.Errorf("spec %s: parameters are not valid JSON: %v", s.Name, err)
		}
	}
}

func TestEveryCatalogToolHasASchema(t *testing.T) {
	inv, _, _ := testInvoker(t)
	for name := range paramSchemas {
		if !inv.Has(name) {
			t.Errorf("schema %q has no implementation", name)
		}
	}
	for name := range catalog {
		if _, ok := paramSchemas[name]; !ok {
			t.Errorf("tool %q has no parameter schema", name)
		}
	}
}
