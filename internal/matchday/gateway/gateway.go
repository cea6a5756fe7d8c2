// Package gateway executes a selected handler against the reasoning backend
// under a wall-clock budget, dispatching the tool calls the backend proposes.
//
// The gateway is the only place tool calls cross from proposal to execution.
// Every call is checked against the role→tool authorization index before
// dispatch; a denied call aborts the run immediately and is never retried.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/matchdaybot/matchday/common/retry"
	"github.com/matchdaybot/matchday/internal/matchday/reasoning"
	"github.com/matchdaybot/matchday/internal/matchday/registry"
	"github.com/matchdaybot/matchday/internal/matchday/tools"
)

// ErrToolDenied is returned when the backend proposes a tool outside the
// handler's authorized set. This is an execution failure, not a permission
// failure: the user's request was allowed, the backend overstepped.
var ErrToolDenied = errors.New("gateway: tool call denied")

// ErrNoProgress is returned when the backend keeps proposing tool calls
// past the round limit without producing a reply.
var ErrNoProgress = errors.New("gateway: tool round limit exceeded")

const (
	// DefaultBudget is the wall-clock allowance for one handler execution,
	// covering every backend round trip and tool dispatch within it.
	DefaultBudget = 25 * time.Second

	// defaultMaxToolRounds bounds the propose→dispatch→complete loop.
	defaultMaxToolRounds = 4
)

// Authorizer answers whether a role may invoke a tool. Implemented by the
// registry.
type Authorizer interface {
	Authorize(role, toolName string) bool
}

// Invoker dispatches one tool call. Implemented by the tools package.
type Invoker interface {
	Call(ctx context.Context, name string, argsJSON string, caller tools.Caller) (string, error)
}

// Input describes one handler execution.
type Input struct {
	// Handler is the selected handler descriptor.
	Handler *registry.HandlerDescriptor
	// Messages is the conversation to send, oldest first, ending with the
	// user's current message.
	Messages []reasoning.Message
	// Tools is the spec set offered to the backend, already restricted to
	// the handler's declared tools.
	Tools []reasoning.ToolSpec
	// Caller identifies who tools run on behalf of.
	Caller tools.Caller
}

// Output is the normalized result of a handler execution.
type Output struct {
	// Text is the backend's final reply, whitespace-trimmed.
	Text string
	// ToolCallsMade lists every tool actually dispatched, in order. Denied
	// proposals never appear here.
	ToolCallsMade []string
	// Grounded reports whether the reply was composed after at least one
	// successful tool round, i.e. from domain data rather than free text.
	Grounded bool
	// TokensUsed is the total token count across every backend round.
	TokensUsed int
}

// Gateway runs handler executions.
type Gateway struct {
	provider  reasoning.Provider
	authorize Authorizer
	invoker   Invoker
	budget    time.Duration
	maxRounds int
	logger    *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBudget overrides the wall-clock execution budget.
func WithBudget(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.budget = d
		}
	}
}

// WithMaxToolRounds overrides the tool round limit.
func WithMaxToolRounds(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxRounds = n
		}
	}
}

// New returns a Gateway over the given backend, authorization index, and
// tool dispatcher.
func New(provider reasoning.Provider, authorize Authorizer, invoker Invoker, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		provider:  provider,
		authorize: authorize,
		invoker:   invoker,
		budget:    DefaultBudget,
		maxRounds: defaultMaxToolRounds,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Execute runs the handler to completion within the wall-clock budget.
//
// The returned Output carries the tool audit even on error, so callers can
// record what ran before the failure. Context errors surface unwrapped for
// errors.Is(err, context.DeadlineExceeded) checks upstream.
func (g *Gateway) Execute(ctx context.Context, in Input) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, g.budget)
	defer cancel()

	out := Output{}
	messages := in.Messages

	for round := 0; ; round++ {
		if round >= g.maxRounds {
			return out, fmt.Errorf("%w (after %d rounds)", ErrNoProgress, round)
		}

		resp, err := g.complete(ctx, reasoning.Request{
			System:   systemPrompt(in.Handler),
			Messages: messages,
			Tools:    in.Tools,
		})
		if err != nil {
			return out, err
		}
		if resp.Usage != nil {
			out.TokensUsed += resp.Usage.TotalTokens
		}

		if len(resp.ToolCalls) == 0 {
			out.Text = strings.TrimSpace(resp.Text)
			return out, nil
		}

		// Authorize the whole proposed batch before dispatching any of it,
		// so a partially-authorized batch makes no changes.
		for _, call := range resp.ToolCalls {
			if !g.authorize.Authorize(in.Handler.Role, call.Name) {
				g.logger.Warn("denied tool call",
					"role", in.Handler.Role,
					"tool", call.Name,
					"sender", in.Caller.SenderID)
				return out, fmt.Errorf("%w: role %q may not call %q", ErrToolDenied, in.Handler.Role, call.Name)
			}
		}

		messages = append(messages, reasoning.Message{
			Role:      "assistant",
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result, err := g.invoker.Call(ctx, call.Name, call.Arguments, in.Caller)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				// Feed the failure back so the backend can compose an
				// honest reply instead of aborting the whole run.
				g.logger.Warn("tool call failed",
					"tool", call.Name,
					"sender", in.Caller.SenderID,
					"error", err)
				result = fmt.Sprintf(`{"error":%q}`, err.Error())
			} else {
				out.Grounded = true
			}
			out.ToolCallsMade = append(out.ToolCallsMade, call.Name)
			messages = append(messages, reasoning.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
}

// complete calls the backend with one retry for transient failures. Rate
// limits and malformed output are surfaced immediately.
func (g *Gateway) complete(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
	var resp *reasoning.Response
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  2,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     time.Second,
		ShouldRetry:  reasoning.IsTransient,
	}, func() error {
		var err error
		resp, err = g.provider.Complete(ctx, req)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return resp, nil
}

// systemPrompt assembles the handler's charter for the backend.
func systemPrompt(h *registry.HandlerDescriptor) string {
	var b strings.Builder
	b.WriteString(h.Description)
	if h.Backstory != "" {
		b.WriteString("\n\n")
		b.WriteString(h.Backstory)
	}
	b.WriteString("\n\nRULES:\n")
	b.WriteString("- Use only the tools offered to you; never invent tool names or results.\n")
	b.WriteString("- If a tool returns no data, say so plainly instead of guessing.\n")
	b.WriteString("- Never include credentials, tokens, or internal identifiers in replies.\n")
	b.WriteString("- Keep replies short enough for a chat room.\n")
	return b.String()
}
