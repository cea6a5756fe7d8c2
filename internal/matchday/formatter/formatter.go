// Package formatter turns terminal pipeline results into outbound chat
// messages.
//
// Messages are deterministic per status: the same outcome always reads the
// same way, and internal failure detail (step names, error strings, stack
// context) never reaches the chat. What the team sees is decided here and
// nowhere else.
package formatter

import (
	"fmt"
	"strings"

	"github.com/matchdaybot/matchday/internal/matchday/pipeline"
)

// NoDataMessage is the success reply used when a handler returned an empty
// body. An explicit "nothing found" beats a silent bot.
const NoDataMessage = "No data found."

const (
	malformedMessage   = "I couldn't parse that command. Try /help for usage."
	unknownChatMessage = "This room isn't registered with me, so I can't act on messages here."
	deniedMessage      = "⛔ You don't have permission to do that here."
	failedMessage      = "Something went wrong while carrying that out. Please try again."
	timeoutMessage     = "⏳ That took too long and I gave up waiting. Please try again."
)

// Formatter implements pipeline.Formatter.
type Formatter struct{}

// New returns a Formatter.
func New() *Formatter {
	return &Formatter{}
}

// Format produces the outbound message for a terminal result.
func (f *Formatter) Format(res pipeline.Result) string {
	switch res.Status {
	case pipeline.StatusSuccess:
		reply := strings.TrimSpace(res.Reply)
		if reply == "" {
			return NoDataMessage
		}
		return reply

	case pipeline.StatusValidationFailed:
		if res.Step == pipeline.StepResolve {
			return unknownChatMessage
		}
		return malformedReply(res)

	case pipeline.StatusPermissionDenied:
		return deniedMessage

	case pipeline.StatusExecutionFailed:
		return withSuggestions(failedMessage, res.Suggestions)

	case pipeline.StatusTimeout:
		return withSuggestions(timeoutMessage, res.Suggestions)
	}

	// Unreachable for well-formed results; fail closed rather than echo
	// anything internal.
	return failedMessage
}

// malformedReply explains what the parser rejected. Hint and Usage derive
// from the message text and the command catalog, never from internal error
// state, so both are safe to echo back.
func malformedReply(res pipeline.Result) string {
	if res.Hint == "" && res.Usage == "" {
		return malformedMessage
	}
	var b strings.Builder
	b.WriteString("I couldn't parse that command")
	if res.Hint != "" {
		b.WriteString(": ")
		b.WriteString(res.Hint)
	}
	b.WriteString(".")
	if res.Usage != "" {
		b.WriteString(" Usage: `")
		b.WriteString(res.Usage)
		b.WriteString("`.")
	} else {
		b.WriteString(" Try /help for usage.")
	}
	return b.String()
}

// withSuggestions appends the near-miss command hint to a failure message,
// so a sender whose typo fell through to the default handler still learns
// the commands they probably wanted when the run itself fails.
func withSuggestions(msg string, suggestions []string) string {
	hint := FormatSuggestions(suggestions)
	if hint == "" {
		return msg
	}
	return msg + " " + hint
}

// FormatSuggestions renders a command-suggestion block, used by callers
// composing richer default-handler fallbacks.
func FormatSuggestions(suggestions []string) string {
	if len(suggestions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		parts = append(parts, "/"+s)
	}
	return fmt.Sprintf("Did you mean %s?", strings.Join(parts, ", "))
}
