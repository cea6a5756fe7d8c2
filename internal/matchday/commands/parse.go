// Package commands provides slash-command parsing for Matchday.
package commands

import (
	"errors"
	"fmt"
	"strings"
)

// Command represents a parsed slash command.
type Command struct {
	// Name is the normalized command name: leading marker stripped, lowercase.
	Name string
	// Args holds positional arguments in order. Quoted substrings are
	// preserved as single arguments.
	Args []string
	// Flags holds named --flag values. A flag without a value is "true".
	Flags map[string]string
	// RawText is the original message text, kept so unrecognised commands can
	// fall through to the free-form handler with full context.
	RawText string
}

// Marker is the prefix that distinguishes a command from free-form text.
const Marker = "/"

// ErrNotACommand is returned by Parse when the message does not start with
// the command marker. Callers should use errors.Is to distinguish this
// expected case (free-form text) from real errors.
var ErrNotACommand = errors.New("not a command (missing marker)")

// Parse parses a message into a Command.
//
// The command name is normalised (marker stripped, lowercased). Arguments are
// whitespace-delimited; double- or single-quoted substrings are kept as one
// argument. Named flags use the --flag or --flag value form. Flags whose
// names start with "_" are reserved for internal dispatch and silently
// stripped so they can never be injected from chat.
func Parse(text string) (*Command, error) {
	raw := text
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, Marker) {
		return nil, ErrNotACommand
	}

	tokens, err := tokenize(strings.TrimPrefix(text, Marker))
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 || tokens[0] == "" {
		return nil, fmt.Errorf("empty command")
	}

	cmd := &Command{
		Name:    strings.ToLower(tokens[0]),
		Args:    []string{},
		Flags:   make(map[string]string),
		RawText: raw,
	}

	rest := tokens[1:]
	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		if strings.HasPrefix(tok, "--") {
			name := strings.TrimPrefix(tok, "--")
			if strings.HasPrefix(name, "_") {
				// Reserved internal flag — strip, consuming its value if any.
				if i+1 < len(rest) && !strings.HasPrefix(rest[i+1], "--") {
					i++
				}
				continue
			}
			if i+1 < len(rest) && !strings.HasPrefix(rest[i+1], "--") {
				cmd.Flags[name] = rest[i+1]
				i++
			} else {
				cmd.Flags[name] = "true"
			}
			continue
		}
		cmd.Args = append(cmd.Args, tok)
	}

	return cmd, nil
}

// tokenize splits text on whitespace while keeping quoted substrings intact.
// Both "double" and 'single' quotes are recognised; the quotes themselves are
// not part of the token. An unterminated quote is an error so malformed input
// surfaces as a corrective message instead of a silently mangled argument.
func tokenize(text string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	var quote rune // 0 when outside a quoted region
	inToken := false

	for _, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// GetFlag returns a flag value with a default.
func (c *Command) GetFlag(name, defaultValue string) string {
	if val, ok := c.Flags[name]; ok {
		return val
	}
	return defaultValue
}

// HasFlag checks if a flag is present.
func (c *Command) HasFlag(name string) bool {
	_, ok := c.Flags[name]
	return ok
}

// GetArg returns an argument by index.
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}

// FreeForm returns a Command representing free-form (non-command) text. The
// name is empty; RawText carries the original message for the general
// handler.
func FreeForm(text string) *Command {
	return &Command{
		Name:    "",
		Args:    []string{},
		Flags:   map[string]string{},
		RawText: text,
	}
}

// IsFreeForm reports whether the command was produced by FreeForm.
func (c *Command) IsFreeForm() bool {
	return c.Name == ""
}
