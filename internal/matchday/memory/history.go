package memory

import (
	"context"

	"github.com/matchdaybot/matchday/internal/matchday/reasoning"
)

// History exposes the tracker as conversation context for the pipeline:
// Recall returns the active window as backend messages, Record observes a
// completed exchange.
type History struct {
	tracker *Tracker
}

// NewHistory wraps a Tracker.
func NewHistory(tracker *Tracker) *History {
	return &History{tracker: tracker}
}

// Recall returns the prior turns for the pair, oldest first.
func (h *History) Recall(_ context.Context, chatID, senderID string) []reasoning.Message {
	c := h.tracker.Active(chatID, senderID)
	if c == nil {
		return nil
	}
	out := make([]reasoning.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, reasoning.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// Record stores both sides of a completed exchange.
func (h *History) Record(_ context.Context, chatID, senderID, userText, reply string) {
	h.tracker.RecordMessage(chatID, senderID, "user", userText)
	h.tracker.RecordMessage(chatID, senderID, "assistant", reply)
}
