// Package reasoning provides the language-model backend used by handlers to
// compose replies and propose tool calls.
//
// The backend only proposes: every tool call it emits is checked against the
// registry's role→tool authorization index before anything is invoked, and a
// denied proposal is never dispatched. The model never sees secret values or
// internal flags.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrRateLimit is returned when the upstream API reports a rate-limiting
// condition (HTTP 429). The request was understood but cannot be served right
// now; callers surface a user-visible message rather than retrying hard.
var ErrRateLimit = errors.New("reasoning: upstream rate limit exceeded")

// ErrTransient is returned for upstream failures that are worth one retry:
// 5xx responses, connection resets, timeouts below the caller's deadline.
var ErrTransient = errors.New("reasoning: transient upstream failure")

// ErrMalformedOutput is returned when the upstream responds successfully but
// the body cannot be interpreted. Not retryable; callers surface a
// clarification prompt.
var ErrMalformedOutput = errors.New("reasoning: malformed response from backend")

// Message is one turn in the conversation sent to the backend.
type Message struct {
	// Role is "system", "user", "assistant", or "tool".
	Role string
	// Content is the message text. For tool results this is the tool's JSON
	// output.
	Content string
	// ToolCalls carries the calls proposed by an assistant turn, echoed back
	// so the backend can pair them with the tool results that follow.
	ToolCalls []ToolCall
	// ToolCallID links a tool-role message to the assistant call it answers.
	ToolCallID string
}

// ToolSpec describes one tool offered to the backend for a single request.
// The set offered is always the intersection of the handler's declared tools
// and the registry catalog; nothing else is visible to the model.
type ToolSpec struct {
	// Name is the registry tool name.
	Name string
	// Description tells the model what the tool does.
	Description string
	// Parameters is the JSON schema of the tool's arguments.
	Parameters json.RawMessage
}

// ToolCall is one tool invocation proposed by the backend.
type ToolCall struct {
	// ID is the provider-assigned call identifier.
	ID string
	// Name is the tool the model wants to invoke.
	Name string
	// Arguments is the JSON-encoded argument object.
	Arguments string
}

// Request is the input to a single completion call.
type Request struct {
	// System is the handler's charter and backstory, assembled by the
	// caller per request so stale catalog data is never reused.
	System string
	// Messages is the conversation so far, oldest first.
	Messages []Message
	// Tools is the set of tools the model may propose. May be empty for
	// pure-text handlers.
	Tools []ToolSpec
	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Response is the backend's reply to one completion call.
type Response struct {
	// Text is the assistant's reply. Empty when the model chose to call
	// tools instead.
	Text string
	// ToolCalls is the ordered list of calls the model proposes. Empty when
	// the model answered directly.
	ToolCalls []ToolCall
	// Usage carries token counts for budget enforcement and the audit
	// trail. Nil when the provider does not report usage.
	Usage *TokenUsage
}

// TokenUsage carries the token counts reported by the upstream API for a
// single call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	// Model is the model name as reported by the provider.
	Model string
	// LatencyMS is the observed HTTP round-trip time in milliseconds.
	LatencyMS int64
}

// RateLimitMessage is the reply for senders who exceed the per-minute call
// limit.
const RateLimitMessage = "⏳ I'm handling too many requests from you right now. Please try again in a moment."

// TokenBudgetExceededMessage is the reply for senders who have exhausted
// their daily token allowance. Every message, slash command or free-form,
// runs through the backend, so nothing is exempt until the budget resets.
const TokenBudgetExceededMessage = "I've reached my daily conversation limit for you. The limit resets at midnight UTC; please try again then."

// Provider is a reasoning backend. Implementations must be safe for
// concurrent use and must honor ctx cancellation and deadlines.
type Provider interface {
	// Complete sends the conversation to the backend and returns its reply.
	Complete(ctx context.Context, req Request) (*Response, error)
}
