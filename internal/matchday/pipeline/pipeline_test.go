package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/matchdaybot/matchday/internal/matchday/chat"
	"github.com/matchdaybot/matchday/internal/matchday/entity"
	"github.com/matchdaybot/matchday/internal/matchday/formatter"
	"github.com/matchdaybot/matchday/internal/matchday/gateway"
	"github.com/matchdaybot/matchday/internal/matchday/pipeline"
	"github.com/matchdaybot/matchday/internal/matchday/registry"
)

type fakeChats map[string]chat.Type

func (f fakeChats) ResolveChatType(_ context.Context, chatID string) (chat.Type, error) {
	t, ok := f[chatID]
	if !ok {
		return chat.TypeUnknown, chat.ErrUnknownChat
	}
	return t, nil
}

type fakeRoles map[string]entity.Roles

func (f fakeRoles) Roles(_ context.Context, senderID string) (entity.Roles, error) {
	return f[senderID], nil
}

type fakeExecutor struct {
	calls []gateway.Input
	out   gateway.Output
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, in gateway.Input) (gateway.Output, error) {
	f.calls = append(f.calls, in)
	return f.out, f.err
}

const (
	mainRoom  = "!main:example.org"
	leadsRoom = "!leads:example.org"
	dmRoom    = "!dm:example.org"

	playerSender = "@kit:example.org"
	adminSender  = "@manager:example.org"
	nobodySender = "@stranger:example.org"
)

func testPipeline(t *testing.T, exec *fakeExecutor) *pipeline.Pipeline {
	t.Helper()
	catalog, err := registry.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	chats := fakeChats{
		mainRoom:  chat.TypeMain,
		leadsRoom: chat.TypeLeadership,
		dmRoom:    chat.TypePrivate,
	}
	roles := fakeRoles{
		playerSender: {IsPlayer: true},
		adminSender:  {IsAdministrator: true},
	}
	return pipeline.New(catalog, chats, roles, exec, formatter.New(), nil, pipeline.Timeouts{}, nil)
}

func msg(sender, room, text string) chat.InboundMessage {
	return chat.InboundMessage{SenderID: sender, ChatID: room, Text: text}
}

func TestRun_HelpSucceeds(t *testing.T) {
	exec := &fakeExecutor{out: gateway.Output{
		Text:          "You can use /status, /available, /matches.",
		ToolCallsMade: []string{"get_my_commands"},
		Grounded:      true,
	}}
	p := testPipeline(t, exec)

	res := p.Run(context.Background(), msg(playerSender, mainRoom, "/help"))
	if res.Status != pipeline.StatusSuccess {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if res.Action != "help" {
		t.Errorf("action: got %q", res.Action)
	}
	if res.HandlerRole != "general" {
		t.Errorf("handler: got %q", res.HandlerRole)
	}
	if len(res.ToolCallsMade) != 1 {
		t.Errorf("tool calls: got %v", res.ToolCallsMade)
	}
	if res.Reply != "You can use /status, /available, /matches." {
		t.Errorf("reply: got %q", res.Reply)
	}
}

func TestRun_AdminCommandInMainChatDenied(t *testing.T) {
	exec := &fakeExecutor{}
	p := testPipeline(t, exec)

	// /promote is served by a leadership-only handler; even an
	// administrator may not run it in the main room.
	res := p.Run(context.Background(), msg(adminSender, mainRoom, "/promote @kit:example.org"))
	if res.Status != pipeline.StatusPermissionDenied {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if res.Step != pipeline.StepPermit {
		t.Errorf("step: got %q", res.Step)
	}
	if len(exec.calls) != 0 {
		t.Error("denied runs must invoke zero tools and no handler")
	}
	if len(res.ToolCallsMade) != 0 {
		t.Errorf("tool calls: got %v, want none", res.ToolCallsMade)
	}
	if res.Reply == "" || strings.Contains(res.Reply, "leadership") {
		t.Errorf("reply must be deterministic and free of internals: %q", res.Reply)
	}
}

func TestRun_RolelessSenderClassifiedUnknownAndDenied(t *testing.T) {
	exec := &fakeExecutor{}
	p := testPipeline(t, exec)

	// /status is a player command; a sender with no stored roles must come
	// back UNKNOWN, never be guessed into the chat default, and be denied.
	res := p.Run(context.Background(), msg(nobodySender, leadsRoom, "/status"))
	if res.Status != pipeline.StatusPermissionDenied {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if res.Step != pipeline.StepEntity {
		t.Errorf("step: got %q", res.Step)
	}
	if !strings.Contains(res.Detail, string(entity.Unknown)) {
		t.Errorf("detail should record the UNKNOWN classification: %q", res.Detail)
	}
	if len(exec.calls) != 0 {
		t.Error("executor must not run for a denied entity")
	}
}

func TestRun_BackendTimeout(t *testing.T) {
	exec := &fakeExecutor{err: fmt.Errorf("execute: %w", context.DeadlineExceeded)}
	p := testPipeline(t, exec)

	res := p.Run(context.Background(), msg(playerSender, dmRoom, "/matches"))
	if res.Status != pipeline.StatusTimeout {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if res.Step != pipeline.StepExecute {
		t.Errorf("step: got %q", res.Step)
	}
	if res.Reply == "" || strings.Contains(res.Reply, "deadline") {
		t.Errorf("reply must not leak the error: %q", res.Reply)
	}
}

func TestRun_UnrecognizedCommandGoesToDefaultHandler(t *testing.T) {
	exec := &fakeExecutor{out: gateway.Output{Text: "I don't know /frobnicate. Try /help."}}
	p := testPipeline(t, exec)

	res := p.Run(context.Background(), msg(playerSender, mainRoom, "/frobnicate now"))
	if res.Status != pipeline.StatusSuccess {
		t.Fatalf("unrecognized commands are first-class: got %s (%s)", res.Status, res.Detail)
	}
	if res.HandlerRole != "general" {
		t.Errorf("handler: got %q, want the default", res.HandlerRole)
	}
	if len(res.Suggestions) == 0 {
		t.Error("suggestions must be computed for unrecognized commands")
	}
	for _, s := range res.Suggestions {
		if s == "approve" || s == "promote" {
			t.Errorf("suggestions must respect the chat type: %v", res.Suggestions)
		}
	}

	if len(exec.calls) != 1 {
		t.Fatalf("executor calls: got %d", len(exec.calls))
	}
	userMsg := exec.calls[0].Messages[len(exec.calls[0].Messages)-1]
	if !strings.Contains(userMsg.Content, "frobnicate") || !strings.Contains(userMsg.Content, "not a known command") {
		t.Errorf("default handler briefing: got %q", userMsg.Content)
	}
}

func TestRun_FreeFormTextGoesToDefaultHandler(t *testing.T) {
	exec := &fakeExecutor{out: gateway.Output{Text: "We play Rovers on Saturday."}}
	p := testPipeline(t, exec)

	res := p.Run(context.Background(), msg(playerSender, mainRoom, "when is the next match?"))
	if res.Status != pipeline.StatusSuccess {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if res.Action != pipeline.FreeFormAction {
		t.Errorf("action: got %q", res.Action)
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("free-form text gets no suggestions: %v", res.Suggestions)
	}
	userMsg := exec.calls[0].Messages[len(exec.calls[0].Messages)-1]
	if userMsg.Content != "when is the next match?" {
		t.Errorf("free-form text must pass through verbatim: %q", userMsg.Content)
	}
}

func TestRun_UnknownChatRejected(t *testing.T) {
	exec := &fakeExecutor{}
	p := testPipeline(t, exec)

	res := p.Run(context.Background(), msg(playerSender, "!mystery:example.org", "/help"))
	if res.Status != pipeline.StatusValidationFailed {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if res.Step != pipeline.StepResolve {
		t.Errorf("step: got %q", res.Step)
	}
	if len(exec.calls) != 0 {
		t.Error("unknown chats must not reach execution")
	}
}

func TestRun_MalformedCommandRejected(t *testing.T) {
	exec := &fakeExecutor{}
	p := testPipeline(t, exec)

	res := p.Run(context.Background(), msg(playerSender, mainRoom, `/addplayer "John`))
	if res.Status != pipeline.StatusValidationFailed {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if res.Step != pipeline.StepParse {
		t.Errorf("step: got %q", res.Step)
	}
	if res.Hint != "unterminated quote" {
		t.Errorf("hint: got %q", res.Hint)
	}
	if !strings.Contains(res.Usage, "/addplayer") {
		t.Errorf("usage for the attempted command: got %q", res.Usage)
	}
	if !strings.Contains(res.Reply, "unterminated quote") || !strings.Contains(res.Reply, "/addplayer") {
		t.Errorf("reply must explain the input and show usage: got %q", res.Reply)
	}
}

func TestRun_MalformedUnknownCommandGetsNoUsage(t *testing.T) {
	exec := &fakeExecutor{}
	p := testPipeline(t, exec)

	res := p.Run(context.Background(), msg(playerSender, mainRoom, `/frobnicate "oops`))
	if res.Status != pipeline.StatusValidationFailed {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if res.Usage != "" {
		t.Errorf("unknown command must carry no usage example: got %q", res.Usage)
	}
}

func TestRun_DeniedToolIsExecutionFailure(t *testing.T) {
	exec := &fakeExecutor{
		out: gateway.Output{ToolCallsMade: nil},
		err: fmt.Errorf("%w: role %q may not call %q", gateway.ErrToolDenied, "general", "approve_player"),
	}
	p := testPipeline(t, exec)

	res := p.Run(context.Background(), msg(playerSender, mainRoom, "who should I approve?"))
	if res.Status != pipeline.StatusExecutionFailed {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if strings.Contains(res.Reply, "approve_player") {
		t.Errorf("tool names must not leak: %q", res.Reply)
	}
}

func TestRun_PlayerCommandWinsOverLeadershipDefault(t *testing.T) {
	exec := &fakeExecutor{out: gateway.Output{Text: "Marked you available."}}
	p := testPipeline(t, exec)

	// A player issuing a player-bound command in the leadership room acts
	// as a player, not under the room's administrator default.
	roles := fakeRoles{playerSender: {IsPlayer: true, IsAdministrator: true}}
	catalog, err := registry.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	p = pipeline.New(catalog,
		fakeChats{leadsRoom: chat.TypeLeadership},
		roles, exec, formatter.New(), nil, pipeline.Timeouts{}, nil)

	res := p.Run(context.Background(), msg(playerSender, leadsRoom, "/available"))
	if res.Status != pipeline.StatusSuccess {
		t.Fatalf("status: got %s (%s)", res.Status, res.Detail)
	}
	if res.HandlerRole != "player_assistant" {
		t.Errorf("handler: got %q", res.HandlerRole)
	}
}

func TestRun_SameInputSameOutcome(t *testing.T) {
	exec := &fakeExecutor{}
	p := testPipeline(t, exec)

	first := p.Run(context.Background(), msg(nobodySender, leadsRoom, "/status"))
	for i := 0; i < 5; i++ {
		again := p.Run(context.Background(), msg(nobodySender, leadsRoom, "/status"))
		if again.Status != first.Status || again.Reply != first.Reply {
			t.Fatalf("outcome drifted: %s/%q then %s/%q", first.Status, first.Reply, again.Status, again.Reply)
		}
	}
}

func TestRun_ExecutorErrorsMapToStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want pipeline.Status
	}{
		{"deadline", context.DeadlineExceeded, pipeline.StatusTimeout},
		{"cancel", context.Canceled, pipeline.StatusTimeout},
		{"tool denied", gateway.ErrToolDenied, pipeline.StatusExecutionFailed},
		{"round limit", gateway.ErrNoProgress, pipeline.StatusExecutionFailed},
		{"other", errors.New("boom"), pipeline.StatusExecutionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPipeline(t, &fakeExecutor{err: tt.err})
			res := p.Run(context.Background(), msg(playerSender, mainRoom, "hello"))
			if res.Status != tt.want {
				t.Errorf("got %s, want %s", res.Status, tt.want)
			}
		})
	}
}
