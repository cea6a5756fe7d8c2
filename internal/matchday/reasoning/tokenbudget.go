package reasoning

import (
	"sync"
	"time"
)

// DefaultTokenBudget is the maximum number of backend tokens allowed per
// sender per UTC day when no explicit budget is configured. Enough for
// roughly a hundred moderate exchanges on a small model.
const DefaultTokenBudget = 50_000

// TokenBudget enforces a per-sender daily token budget for reasoning calls.
//
// The counter for each sender resets at midnight UTC. Callers check Allow
// before issuing a request and call RecordUsage with the reported token
// count afterwards.
//
// TokenBudget is safe for concurrent use.
type TokenBudget struct {
	mu     sync.Mutex
	budget int
	usage  map[string]*senderDailyUsage
}

type senderDailyUsage struct {
	tokens  int
	resetAt time.Time // next midnight UTC
}

// NewTokenBudget returns a TokenBudget allowing at most dailyBudget tokens
// per sender per UTC day. Non-positive budgets fall back to the default.
func NewTokenBudget(dailyBudget int) *TokenBudget {
	if dailyBudget <= 0 {
		dailyBudget = DefaultTokenBudget
	}
	return &TokenBudget{
		budget: dailyBudget,
		usage:  make(map[string]*senderDailyUsage),
	}
}

// Budget returns the configured daily token limit per sender.
func (tb *TokenBudget) Budget() int {
	return tb.budget
}

// Allow reports whether senderID still has budget today. It does not consume
// tokens; call RecordUsage after the request completes.
func (tb *TokenBudget) Allow(senderID string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.resetIfNeeded(senderID)

	u := tb.usage[senderID]
	if u == nil {
		return true
	}
	return u.tokens < tb.budget
}

// RecordUsage adds tokens to senderID's running daily total.
func (tb *TokenBudget) RecordUsage(senderID string, tokens int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.resetIfNeeded(senderID)

	u := tb.usage[senderID]
	if u == nil {
		u = &senderDailyUsage{resetAt: nextMidnightUTC()}
		tb.usage[senderID] = u
	}
	u.tokens += tokens
}

// Remaining returns the tokens senderID may still consume today.
func (tb *TokenBudget) Remaining(senderID string) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.resetIfNeeded(senderID)

	u := tb.usage[senderID]
	if u == nil {
		return tb.budget
	}
	if rem := tb.budget - u.tokens; rem > 0 {
		return rem
	}
	return 0
}

// Used returns the total tokens senderID has consumed today.
func (tb *TokenBudget) Used(senderID string) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.resetIfNeeded(senderID)

	u := tb.usage[senderID]
	if u == nil {
		return 0
	}
	return u.tokens
}

// resetIfNeeded deletes the senderID entry once the UTC calendar day has
// rolled over. Must be called with tb.mu held.
func (tb *TokenBudget) resetIfNeeded(senderID string) {
	u := tb.usage[senderID]
	if u == nil {
		return
	}
	if time.Now().UTC().After(u.resetAt) {
		delete(tb.usage, senderID)
	}
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
