// Package entity decides in what capacity a chat member is acting for a
// given message. Classification is a pure function of the message, the chat
// type, and the caller's stored roles; it performs no I/O and asks no
// follow-up questions.
package entity

import "github.com/matchdaybot/matchday/internal/matchday/chat"

// Type is the resolved acting capacity of a message sender.
type Type string

const (
	// Player means the sender acts as a registered player.
	Player Type = "PLAYER"
	// Administrator means the sender acts as a team administrator.
	Administrator Type = "TEAM_ADMINISTRATOR"
	// Unknown means no capacity could be established. Downstream permission
	// checks treat Unknown as having no rights; the classifier never
	// guesses.
	Unknown Type = "UNKNOWN"
)

// Roles carries the caller's stored memberships, looked up before
// classification.
type Roles struct {
	IsPlayer        bool
	IsAdministrator bool
}

// CommandSets holds the command-name sets derived from the registry's
// bindings. Injected rather than looked up so classification stays pure.
type CommandSets struct {
	// Player holds command names bound to the player entity.
	Player map[string]struct{}
	// Administrator holds command names bound to the administrator entity.
	Administrator map[string]struct{}
}

// Classify resolves the acting capacity for a message.
//
// Precedence: a player-bound command implies Player, an administrator-bound
// command implies Administrator, otherwise the chat type's default applies
// (main and private default to Player, leadership to Administrator). The
// implied capacity is then checked against the caller's stored roles; a
// contradiction yields Unknown rather than a guess.
func Classify(command string, chatType chat.Type, roles Roles, sets CommandSets) Type {
	implied := impliedBy(command, chatType, sets)

	switch implied {
	case Player:
		if !roles.IsPlayer {
			return Unknown
		}
	case Administrator:
		if !roles.IsAdministrator {
			return Unknown
		}
	}
	return implied
}

func impliedBy(command string, chatType chat.Type, sets CommandSets) Type {
	if command != "" {
		if _, ok := sets.Player[command]; ok {
			return Player
		}
		if _, ok := sets.Administrator[command]; ok {
			return Administrator
		}
	}
	switch chatType {
	case chat.TypeMain, chat.TypePrivate:
		return Player
	case chat.TypeLeadership:
		return Administrator
	default:
		return Unknown
	}
}
