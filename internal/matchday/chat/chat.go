// Package chat defines the chat-channel model shared across the pipeline:
// the chat type taxonomy, the inbound message envelope, and the registry
// interface that maps chat identifiers to chat types.
package chat

import (
	"context"
	"errors"
	"time"
)

// Type is the class of conversation channel a message arrived on. It acts as
// a coarse permission tier: leadership chats carry elevated capability,
// private chats are single-user scope.
type Type string

const (
	// TypeMain is the whole-team room where players coordinate.
	TypeMain Type = "main"
	// TypeLeadership is the administrators' room; commands invoked here run
	// with elevated capability.
	TypeLeadership Type = "leadership"
	// TypePrivate is a direct-message room between one user and the bot.
	TypePrivate Type = "private"
	// TypeUnknown marks a chat identifier the registry could not resolve.
	TypeUnknown Type = "unknown"
)

// Valid reports whether t is one of the resolvable chat types.
func (t Type) Valid() bool {
	switch t {
	case TypeMain, TypeLeadership, TypePrivate:
		return true
	}
	return false
}

// ParseType converts a string into a Type, returning TypeUnknown for
// anything unrecognised.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeMain:
		return TypeMain
	case TypeLeadership:
		return TypeLeadership
	case TypePrivate:
		return TypePrivate
	}
	return TypeUnknown
}

// InboundMessage is the raw envelope of one inbound chat event. It is created
// once per event, never mutated, and discarded when the pipeline run that
// consumed it completes.
type InboundMessage struct {
	// SenderID is the platform identifier of the message author.
	SenderID string
	// ChatID is the platform identifier of the room the message arrived in.
	ChatID string
	// Text is the raw message body.
	Text string
	// Timestamp is the arrival time reported by the platform.
	Timestamp time.Time
}

// ErrUnknownChat is returned by a Registry when the chat identifier is not
// known. Callers use errors.Is to turn this into a validation failure rather
// than treating it as an infrastructure error.
var ErrUnknownChat = errors.New("chat: unknown chat identifier")

// Registry resolves chat identifiers to chat types. Implementations must be
// safe for concurrent use; the pipeline consults the registry on every run.
type Registry interface {
	ResolveChatType(ctx context.Context, chatID string) (Type, error)
}
