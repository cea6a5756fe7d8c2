package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/matchdaybot/matchday/internal/matchday/chat"
	"github.com/matchdaybot/matchday/internal/matchday/registry"
	"github.com/matchdaybot/matchday/internal/matchday/store"
)

func TestMarkdownToHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bold",
			in:   "**next match** is Saturday",
			want: "<strong>next match</strong> is Saturday<br/>",
		},
		{
			name: "inline code",
			in:   "type `/help` to start",
			want: "type <code>/help</code> to start<br/>",
		},
		{
			name: "fenced block escapes html",
			in:   "```\n<roster>\n```",
			want: "<pre><code>&lt;roster&gt;\n</code></pre>",
		},
		{
			name: "unmatched bold left alone",
			in:   "a ** b",
			want: "a ** b<br/>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := markdownToHTML(tt.in); got != tt.want {
				t.Errorf("markdownToHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestReplaceDelimited(t *testing.T) {
	got := replaceDelimited("a `b` c `d` e", "`", "<code>", "</code>")
	want := "a <code>b</code> c <code>d</code> e"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSessionLock_SamePairSameLock(t *testing.T) {
	a := &App{sessions: make(map[string]*sync.Mutex)}

	l1 := a.sessionLock("!main", "@kit")
	l2 := a.sessionLock("!main", "@kit")
	if l1 != l2 {
		t.Error("same pair must share a lock")
	}

	l3 := a.sessionLock("!main", "@sam")
	if l1 == l3 {
		t.Error("different senders must not share a lock")
	}
}

func TestCommandCatalog_ScopedByChatType(t *testing.T) {
	catalog, err := registry.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	cc := &commandCatalog{catalog: catalog}

	main := cc.UsableCommands(chat.TypeMain)
	leadership := cc.UsableCommands(chat.TypeLeadership)
	if len(main) == 0 || len(leadership) == 0 {
		t.Fatal("both chat types must expose commands")
	}
	if len(leadership) <= len(main) {
		t.Errorf("leadership must expose more commands than main: %d vs %d",
			len(leadership), len(main))
	}
	for _, c := range main {
		if c.Name == "addplayer" {
			t.Error("administrator command leaked into the main chat listing")
		}
	}
}

func TestStoreRoles(t *testing.T) {
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	err = st.CreatePlayer(ctx, &store.Player{
		MXID:        sql.NullString{String: "@kit:example.org", Valid: true},
		DisplayName: "Kit",
		Status:      store.PlayerActive,
	})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if err := st.GrantAdministrator(ctx, "@coach:example.org", "@owner:example.org"); err != nil {
		t.Fatalf("GrantAdministrator: %v", err)
	}

	r := &storeRoles{store: st}

	roles, err := r.Roles(ctx, "@kit:example.org")
	if err != nil {
		t.Fatalf("Roles: %v", err)
	}
	if !roles.IsPlayer || roles.IsAdministrator {
		t.Errorf("player roles: got %+v", roles)
	}

	roles, err = r.Roles(ctx, "@coach:example.org")
	if err != nil {
		t.Fatalf("Roles: %v", err)
	}
	if roles.IsPlayer || !roles.IsAdministrator {
		t.Errorf("administrator roles: got %+v", roles)
	}

	roles, err = r.Roles(ctx, "@stranger:example.org")
	if err != nil {
		t.Fatalf("Roles: %v", err)
	}
	if roles.IsPlayer || roles.IsAdministrator {
		t.Errorf("stranger roles: got %+v", roles)
	}
}

func TestHealthEndpoints(t *testing.T) {
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	active := &store.Player{
		MXID:        sql.NullString{String: "@kit:example.org", Valid: true},
		DisplayName: "Kit",
		Status:      store.PlayerActive,
	}
	if err := st.CreatePlayer(ctx, active); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	pending := &store.Player{DisplayName: "New"}
	if err := st.CreatePlayer(ctx, pending); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	match := &store.Match{
		Opponent:  "Rovers",
		Venue:     store.VenueHome,
		Kickoff:   time.Now().Add(48 * time.Hour),
		CreatedBy: "@coach:example.org",
	}
	if err := st.CreateMatch(ctx, match); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	hs := NewHealthServer(":0", st)

	rec := httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/health: got %d", rec.Code)
	}
	var health healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode /health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("/health status: got %q", health.Status)
	}

	rec = httptest.NewRecorder()
	hs.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/status: got %d", rec.Code)
	}
	var status statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode /status: %v", err)
	}
	if status.ActivePlayers != 1 || status.PendingPlayers != 1 || status.UpcomingMatches != 1 {
		t.Errorf("/status counts: got %+v", status)
	}
}

func TestNew_RequiresMainRoomAndAPIKey(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Error("missing main room must fail")
	}
	if _, err := New(&Config{MainRoom: "!main:example.org"}); err == nil {
		t.Error("missing API key must fail")
	}
}
