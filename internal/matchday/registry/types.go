// Package registry holds the static catalog of handler and tool descriptors
// and the command-to-role bindings that drive routing.
//
// The catalog is loaded once at process start from a versioned YAML document,
// validated structurally (JSON schema) and semantically (duplicate roles,
// dangling tool references), and never mutated afterwards. There is
// deliberately no runtime mutation API: configuration changes require a
// restart, which removes a whole class of races between request handling and
// reload.
package registry

import "github.com/matchdaybot/matchday/internal/matchday/chat"

// SpecVersion is the apiVersion string required in every registry document.
const SpecVersion = "matchday/v1"

// SideEffect classifies what a tool does to domain data.
type SideEffect string

const (
	// SideEffectRead marks a tool that only reads domain data.
	SideEffectRead SideEffect = "read"
	// SideEffectMutate marks a tool that changes domain data.
	SideEffectMutate SideEffect = "mutate"
)

// Entity names the acting capacity a command requires.
const (
	// EntityPlayer restricts a command to callers acting as players.
	EntityPlayer = "player"
	// EntityAdministrator restricts a command to callers acting as team
	// administrators.
	EntityAdministrator = "administrator"
	// EntityAny marks a command that needs no resolved entity (help,
	// registration, match listings).
	EntityAny = "any"
)

// Document is the root type of the registry configuration file.
type Document struct {
	// APIVersion must be "matchday/v1".
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`

	// DefaultHandler is the role that serves free-form text and unrecognised
	// commands. It must be declared in Handlers and allow every chat type.
	DefaultHandler string `yaml:"defaultHandler" json:"defaultHandler"`

	// Handlers declares every specialised handler.
	Handlers []HandlerDescriptor `yaml:"handlers" json:"handlers"`

	// Tools declares every invokable tool.
	Tools []ToolDescriptor `yaml:"tools" json:"tools"`

	// Commands binds slash-command names to handler roles and the entity
	// capacity they require.
	Commands []CommandBinding `yaml:"commands" json:"commands"`
}

// HandlerDescriptor describes one specialised handler: what it does, which
// tools it may call, and which chat types it serves.
type HandlerDescriptor struct {
	// Role is the unique handler identifier (e.g. "team_manager").
	Role string `yaml:"role" json:"role"`

	// Description is a one-line capability summary, shown to the reasoning
	// backend as the handler's charter.
	Description string `yaml:"description" json:"description"`

	// Backstory is the longer persona/instruction block sent to the
	// reasoning backend. Advisory, never used for authorization.
	Backstory string `yaml:"backstory,omitempty" json:"backstory,omitempty"`

	// ChatTypes lists the chat types in which this handler may be invoked.
	ChatTypes []chat.Type `yaml:"chatTypes" json:"chatTypes"`

	// Tools is the ordered list of tool names this handler may invoke.
	Tools []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// AllowsChat reports whether the handler may run in the given chat type.
func (h *HandlerDescriptor) AllowsChat(t chat.Type) bool {
	for _, ct := range h.ChatTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// ToolDescriptor describes one invokable tool.
type ToolDescriptor struct {
	// Name is the unique tool identifier (e.g. "get_player_list").
	Name string `yaml:"name" json:"name"`

	// Description tells the reasoning backend what the tool does.
	Description string `yaml:"description" json:"description"`

	// SideEffect is "read" or "mutate".
	SideEffect SideEffect `yaml:"sideEffect" json:"sideEffect"`

	// SafeConcurrent must be true for a mutating tool shared by more than
	// one handler role; it asserts the tool is idempotent or otherwise safe
	// to run concurrently. Validated at load time.
	SafeConcurrent bool `yaml:"safeConcurrent,omitempty" json:"safeConcurrent,omitempty"`
}

// CommandBinding maps a slash command to the role that serves it and the
// entity capacity it requires.
type CommandBinding struct {
	// Name is the normalized command name without the marker (e.g. "approve").
	Name string `yaml:"name" json:"name"`

	// Role is the handler role that serves this command.
	Role string `yaml:"role" json:"role"`

	// Entity is "player", "administrator", or "any".
	Entity string `yaml:"entity" json:"entity"`

	// Description is the one-line help text shown in command listings.
	Description string `yaml:"description" json:"description"`

	// Usage is the corrective usage example shown on malformed input.
	Usage string `yaml:"usage,omitempty" json:"usage,omitempty"`
}

// RequiresEntity reports whether the command needs a resolved entity type.
func (b *CommandBinding) RequiresEntity() bool {
	return b.Entity == EntityPlayer || b.Entity == EntityAdministrator
}
