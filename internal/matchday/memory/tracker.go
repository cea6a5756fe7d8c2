// Package memory keeps short-term conversation context per chat/sender pair
// so the reasoning backend has continuity across messages.
//
// A conversation is a bounded sliding window of recent turns. After a period
// of inactivity it is sealed and a fresh one starts; sealed conversations
// are returned to the caller, which may archive them or drop them.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one remembered turn.
type Message struct {
	// Role is "user" or "assistant".
	Role string
	// Content is the turn's text.
	Content string
	// Timestamp is when the turn was recorded.
	Timestamp time.Time
}

// Conversation is the short-term buffer for one chat/sender pair.
type Conversation struct {
	ID        string
	ChatID    string
	SenderID  string
	StartedAt time.Time
	LastMsgAt time.Time
	Sealed    bool
	Messages  []Message
}

// TrackerConfig holds configuration for the Tracker.
type TrackerConfig struct {
	// Cooldown is the inactivity period after which a conversation is
	// considered over and sealed on the next touch.
	Cooldown time.Duration

	// MaxMessages bounds the sliding window; oldest turns drop first.
	MaxMessages int

	// MaxTokens is the estimated token budget for the window.
	MaxTokens int
}

// DefaultTrackerConfig returns the documented defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Cooldown:    15 * time.Minute,
		MaxMessages: 50,
		MaxTokens:   8000,
	}
}

// Tracker manages conversation lifecycles. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	config TrackerConfig
	convos map[string]*Conversation // key: chatID + ":" + senderID
}

// NewTracker creates a Tracker with the given configuration. Non-positive
// fields fall back to the defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	def := DefaultTrackerConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Tracker{
		config: cfg,
		convos: make(map[string]*Conversation),
	}
}

// RecordMessage appends a turn to the active conversation for the pair,
// starting a fresh conversation when the previous one has gone stale.
// Returns the conversation ID and any conversation sealed as a side effect.
func (t *Tracker) RecordMessage(chatID, senderID, role, content string) (conversationID string, sealed []Conversation) {
	return t.recordMessageAt(chatID, senderID, role, content, time.Now())
}

// recordMessageAt is the time-injectable core of RecordMessage.
func (t *Tracker) recordMessageAt(chatID, senderID, role, content string, now time.Time) (string, []Conversation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := sessionKey(chatID, senderID)
	var sealed []Conversation

	existing := t.convos[key]
	if existing != nil && !existing.Sealed && now.Sub(existing.LastMsgAt) > t.config.Cooldown {
		existing.Sealed = true
		sealed = append(sealed, *existing)
		existing = nil
	}

	if existing == nil || existing.Sealed {
		existing = &Conversation{
			ID:        uuid.New().String(),
			ChatID:    chatID,
			SenderID:  senderID,
			StartedAt: now,
		}
		t.convos[key] = existing
	}

	existing.Messages = append(existing.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	existing.LastMsgAt = now

	t.enforceBufferLimits(existing)

	return existing.ID, sealed
}

// Active returns a snapshot of the unsealed conversation for the pair, or
// nil when there is none. The snapshot is a copy; mutations do not reach
// the tracker.
func (t *Tracker) Active(chatID, senderID string) *Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.convos[sessionKey(chatID, senderID)]
	if c == nil || c.Sealed {
		return nil
	}
	return snapshot(c)
}

// SealExpired seals every conversation idle past the cooldown, removing it
// from the tracker and returning it to the caller.
func (t *Tracker) SealExpired(now time.Time) []Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sealed []Conversation
	for key, c := range t.convos {
		if c.Sealed {
			continue
		}
		if now.Sub(c.LastMsgAt) > t.config.Cooldown {
			c.Sealed = true
			sealed = append(sealed, *c)
			delete(t.convos, key)
		}
	}
	return sealed
}

// enforceBufferLimits trims the window to the configured bounds, oldest
// turns first. Must be called with mu held.
func (t *Tracker) enforceBufferLimits(c *Conversation) {
	if len(c.Messages) > t.config.MaxMessages {
		excess := len(c.Messages) - t.config.MaxMessages
		c.Messages = c.Messages[excess:]
	}
	for len(c.Messages) > 1 && estimateTokens(c.Messages) > t.config.MaxTokens {
		c.Messages = c.Messages[1:]
	}
}

// estimateTokens approximates the token cost of a message window at four
// characters per token, the usual rule of thumb for English chat.
func estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)/4 + 4
	}
	return total
}

func snapshot(c *Conversation) *Conversation {
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}

func sessionKey(chatID, senderID string) string {
	return chatID + ":" + senderID
}
