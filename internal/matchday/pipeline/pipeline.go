// Package pipeline orchestrates one inbound message through parsing,
// permission and entity validation, handler selection, execution, and
// response formatting.
//
// The step order is fixed. Each run ends in exactly one terminal status, and
// every blocking step runs under its own deadline so a stuck dependency
// cannot hold the message queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/matchdaybot/matchday/common/trace"
	"github.com/matchdaybot/matchday/internal/matchday/chat"
	"github.com/matchdaybot/matchday/internal/matchday/commands"
	"github.com/matchdaybot/matchday/internal/matchday/entity"
	"github.com/matchdaybot/matchday/internal/matchday/gateway"
	"github.com/matchdaybot/matchday/internal/matchday/reasoning"
	"github.com/matchdaybot/matchday/internal/matchday/registry"
	"github.com/matchdaybot/matchday/internal/matchday/tools"
)

// FreeFormAction is the Result.Action value for non-command messages.
const FreeFormAction = "free_form"

// Timeouts bounds the blocking pipeline steps. The execute allowance should
// exceed the gateway's wall-clock budget slightly so the gateway can return
// its own, more precise error first.
type Timeouts struct {
	// Validate bounds the chat-type and role lookups.
	Validate time.Duration
	// Execute bounds handler execution end to end.
	Execute time.Duration
}

// DefaultTimeouts matches the gateway's default budget with headroom.
var DefaultTimeouts = Timeouts{
	Validate: 5 * time.Second,
	Execute:  gateway.DefaultBudget + 5*time.Second,
}

// RolesLookup resolves a sender's stored memberships.
type RolesLookup interface {
	Roles(ctx context.Context, senderID string) (entity.Roles, error)
}

// Executor runs a selected handler. Implemented by the gateway.
type Executor interface {
	Execute(ctx context.Context, in gateway.Input) (gateway.Output, error)
}

// History supplies and records conversation context. Optional; a nil History
// disables memory.
type History interface {
	// Recall returns the prior turns for this chat/sender pair, oldest
	// first, ready for the backend context window.
	Recall(ctx context.Context, chatID, senderID string) []reasoning.Message
	// Record observes a completed exchange.
	Record(ctx context.Context, chatID, senderID, userText, reply string)
}

// Pipeline routes inbound messages. Construct with New; zero value is not
// usable.
type Pipeline struct {
	catalog  *registry.Registry
	chats    chat.Registry
	roles    RolesLookup
	executor Executor
	format   Formatter
	history  History
	timeouts Timeouts
	logger   *slog.Logger
}

// New wires a Pipeline. history may be nil.
func New(catalog *registry.Registry, chats chat.Registry, roles RolesLookup, executor Executor, format Formatter, history History, timeouts Timeouts, logger *slog.Logger) *Pipeline {
	if timeouts.Validate <= 0 {
		timeouts.Validate = DefaultTimeouts.Validate
	}
	if timeouts.Execute <= 0 {
		timeouts.Execute = DefaultTimeouts.Execute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		catalog:  catalog,
		chats:    chats,
		roles:    roles,
		executor: executor,
		format:   format,
		history:  history,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Run processes one inbound message to a terminal result. It never panics
// on user input and always returns a Result with a formatted Reply.
func (p *Pipeline) Run(ctx context.Context, msg chat.InboundMessage) Result {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		traceID = trace.GenerateID()
		ctx = trace.WithTraceID(ctx, traceID)
	}
	logger := p.logger.With("trace_id", traceID, "sender", msg.SenderID, "chat", msg.ChatID)

	res := p.run(ctx, logger, msg)
	res.Reply = p.format.Format(res)

	logger.Info("pipeline run complete",
		"status", string(res.Status),
		"step", res.Step,
		"action", res.Action,
		"handler", res.HandlerRole,
		"tool_calls", len(res.ToolCallsMade))

	if p.history != nil && res.Status == StatusSuccess {
		p.history.Record(ctx, msg.ChatID, msg.SenderID, msg.Text, res.Reply)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, msg chat.InboundMessage) Result {
	// Step 1: parse. Purely local; no timeout needed.
	cmd, err := commands.Parse(msg.Text)
	switch {
	case errors.Is(err, commands.ErrNotACommand):
		cmd = commands.FreeForm(msg.Text)
	case err != nil:
		// Parse errors derive only from the message text, so the reason
		// can be echoed back along with a usage example when the
		// attempted command is recognisable.
		return Result{
			Status: StatusValidationFailed,
			Step:   StepParse,
			Action: FreeFormAction,
			Detail: err.Error(),
			Hint:   err.Error(),
			Usage:  p.usageFor(msg.Text),
		}
	}

	action := FreeFormAction
	if !cmd.IsFreeForm() {
		action = cmd.Name
	}

	// Step 2: resolve the chat type. Messages from unregistered rooms are
	// rejected rather than guessed at.
	vctx, cancel := context.WithTimeout(ctx, p.timeouts.Validate)
	chatType, err := p.chats.ResolveChatType(vctx, msg.ChatID)
	cancel()
	if err != nil {
		res := Result{Step: StepResolve, Action: action, Detail: err.Error()}
		switch {
		case errors.Is(err, chat.ErrUnknownChat):
			res.Status = StatusValidationFailed
		case errors.Is(err, context.DeadlineExceeded):
			res.Status = StatusTimeout
		default:
			res.Status = StatusExecutionFailed
		}
		return res
	}

	// Step 3: permission validation. A command bound in the catalog must be
	// allowed in this chat type before anything else runs.
	var binding *registry.CommandBinding
	if !cmd.IsFreeForm() {
		b, known := p.catalog.Binding(cmd.Name)
		if known {
			binding = b
			handler, err := p.catalog.Resolve(binding.Role)
			if err != nil {
				return Result{Status: StatusExecutionFailed, Step: StepPermit, Action: action, Detail: err.Error()}
			}
			if !handler.AllowsChat(chatType) {
				return Result{
					Status: StatusPermissionDenied,
					Step:   StepPermit,
					Action: action,
					Detail: fmt.Sprintf("command %q is not available in %s chats", cmd.Name, chatType),
				}
			}
		}
	}

	// Step 4: entity classification. The classifier never guesses; a role
	// contradiction comes back Unknown and Unknown holds no permissions.
	vctx, cancel = context.WithTimeout(ctx, p.timeouts.Validate)
	roles, err := p.roles.Roles(vctx, msg.SenderID)
	cancel()
	if err != nil {
		res := Result{Step: StepEntity, Action: action, Detail: err.Error()}
		if errors.Is(err, context.DeadlineExceeded) {
			res.Status = StatusTimeout
		} else {
			res.Status = StatusExecutionFailed
		}
		return res
	}

	commandName := ""
	if binding != nil {
		commandName = binding.Name
	}
	actor := entity.Classify(commandName, chatType, roles, entity.CommandSets{
		Player:        p.catalog.PlayerCommands(),
		Administrator: p.catalog.AdministratorCommands(),
	})

	if binding != nil && binding.RequiresEntity() {
		denied := actor == entity.Unknown ||
			(binding.Entity == registry.EntityPlayer && actor != entity.Player) ||
			(binding.Entity == registry.EntityAdministrator && actor != entity.Administrator)
		if denied {
			return Result{
				Status: StatusPermissionDenied,
				Step:   StepEntity,
				Action: action,
				Detail: fmt.Sprintf("command %q requires %s, sender classified as %s", binding.Name, binding.Entity, actor),
			}
		}
	}

	// Step 5: handler selection. Unrecognized commands and free-form text
	// go to the default handler; that is routing, not an error.
	var handler *registry.HandlerDescriptor
	var suggestions []string
	if binding != nil {
		handler, err = p.catalog.Resolve(binding.Role)
		if err != nil {
			return Result{Status: StatusExecutionFailed, Step: StepSelect, Action: action, Detail: err.Error()}
		}
	} else {
		handler = p.catalog.Default()
		if !cmd.IsFreeForm() {
			suggestions = p.suggest(cmd.Name, chatType)
			logger.Info("unrecognized command routed to default handler",
				"command", cmd.Name,
				"suggestions", suggestions)
		}
	}

	// Step 6: execute.
	ectx, cancel := context.WithTimeout(ctx, p.timeouts.Execute)
	defer cancel()

	out, err := p.executor.Execute(ectx, gateway.Input{
		Handler:  handler,
		Messages: p.buildMessages(ctx, msg, cmd, suggestions),
		Tools:    p.toolSpecs(handler),
		Caller:   tools.Caller{SenderID: msg.SenderID, ChatType: chatType},
	})
	res := Result{
		Action:        action,
		HandlerRole:   handler.Role,
		ToolCallsMade: out.ToolCallsMade,
		Grounded:      out.Grounded,
		Suggestions:   suggestions,
		TokensUsed:    out.TokensUsed,
	}
	if err != nil {
		res.Step = StepExecute
		res.Detail = err.Error()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			res.Status = StatusTimeout
		case errors.Is(err, gateway.ErrToolDenied),
			errors.Is(err, gateway.ErrNoProgress),
			errors.Is(err, reasoning.ErrRateLimit),
			errors.Is(err, reasoning.ErrMalformedOutput):
			res.Status = StatusExecutionFailed
		case errors.Is(err, context.Canceled):
			res.Status = StatusTimeout
		default:
			res.Status = StatusExecutionFailed
		}
		return res
	}

	res.Status = StatusSuccess
	res.Step = StepExecute
	res.Reply = out.Text
	return res
}

// buildMessages assembles the backend conversation: recalled history, then
// the current message. Recognized commands are passed with their parsed
// shape so the backend does not re-tokenize them.
func (p *Pipeline) buildMessages(ctx context.Context, msg chat.InboundMessage, cmd *commands.Command, suggestions []string) []reasoning.Message {
	var messages []reasoning.Message
	if p.history != nil {
		messages = append(messages, p.history.Recall(ctx, msg.ChatID, msg.SenderID)...)
	}

	content := msg.Text
	if !cmd.IsFreeForm() {
		content = fmt.Sprintf("The member issued the command /%s with arguments %v and flags %v. Serve it with your tools.", cmd.Name, cmd.Args, cmd.Flags)
		if len(suggestions) > 0 {
			content = fmt.Sprintf("The member issued /%s, which is not a known command. Tell them so and point them at these: %v. Do not invent behaviour for the unknown command.", cmd.Name, suggestions)
		}
	}
	return append(messages, reasoning.Message{Role: "user", Content: content})
}

func (p *Pipeline) toolSpecs(handler *registry.HandlerDescriptor) []reasoning.ToolSpec {
	return tools.Specs(handler.Tools, func(name string) string {
		if td, ok := p.catalog.Tool(name); ok {
			return td.Description
		}
		return ""
	})
}

// usageFor returns the catalog usage string for the command a malformed
// message was attempting, or "" when the first token names no known command.
func (p *Pipeline) usageFor(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], commands.Marker) {
		return ""
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], commands.Marker))
	if b, ok := p.catalog.Binding(name); ok {
		return b.Usage
	}
	return ""
}

// suggest returns up to three command names usable in this chat type,
// closest to the unrecognized name first.
func (p *Pipeline) suggest(name string, chatType chat.Type) []string {
	type scored struct {
		name string
		dist int
	}
	var candidates []scored
	for _, b := range p.catalog.CommandsFor(chatType) {
		candidates = append(candidates, scored{b.Name, editDistance(name, b.Name)})
	}
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].dist < candidates[j-1].dist; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	var out []string
	for _, c := range candidates {
		out = append(out, c.name)
		if len(out) == 3 {
			break
		}
	}
	return out
}

func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
