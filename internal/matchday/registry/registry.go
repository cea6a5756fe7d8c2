package registry

import (
	_ "embed"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/matchdaybot/matchday/internal/matchday/chat"
)

//go:embed schema/registry.schema.json
var schemaJSON string

//go:embed config/registry.yaml
var defaultConfig []byte

// Registry is the immutable, process-wide catalog of handlers, tools, and
// command bindings. It is built once by Load and shared by reference; all
// lookups are read-only and safe for concurrent use without locking.
type Registry struct {
	doc Document

	handlersByRole map[string]*HandlerDescriptor
	toolsByName    map[string]*ToolDescriptor
	commandsByName map[string]*CommandBinding

	// allowed is the role → tool authorization index built once at load so
	// Authorize is O(1) per call.
	allowed map[string]map[string]struct{}

	// toolRoles maps each tool to the roles permitted to call it, used for
	// the shared-mutating-tool validation and diagnostics.
	toolRoles map[string][]string
}

// LoadDefault builds the Registry from the configuration embedded in the
// binary.
func LoadDefault() (*Registry, error) {
	return Load(defaultConfig)
}

// Load parses, validates, and indexes a registry configuration document.
//
// Validation failures here are deployment defects, not runtime conditions:
// callers are expected to abort startup on error.
func Load(data []byte) (*Registry, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}
	if err := validateDocument(&doc); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	r := &Registry{
		doc:            doc,
		handlersByRole: make(map[string]*HandlerDescriptor, len(doc.Handlers)),
		toolsByName:    make(map[string]*ToolDescriptor, len(doc.Tools)),
		commandsByName: make(map[string]*CommandBinding, len(doc.Commands)),
		allowed:        make(map[string]map[string]struct{}, len(doc.Handlers)),
		toolRoles:      make(map[string][]string, len(doc.Tools)),
	}

	for i := range doc.Tools {
		r.toolsByName[doc.Tools[i].Name] = &doc.Tools[i]
	}
	for i := range doc.Handlers {
		h := &doc.Handlers[i]
		r.handlersByRole[h.Role] = h
		idx := make(map[string]struct{}, len(h.Tools))
		for _, tool := range h.Tools {
			idx[tool] = struct{}{}
			r.toolRoles[tool] = append(r.toolRoles[tool], h.Role)
		}
		r.allowed[h.Role] = idx
	}
	for i := range doc.Commands {
		r.commandsByName[doc.Commands[i].Name] = &doc.Commands[i]
	}

	// A mutating tool callable from more than one role must be explicitly
	// marked safe for concurrent use.
	for name, roles := range r.toolRoles {
		td := r.toolsByName[name]
		if td.SideEffect == SideEffectMutate && len(roles) > 1 && !td.SafeConcurrent {
			return nil, fmt.Errorf(
				"registry: mutating tool %q is shared by roles %s but not marked safeConcurrent",
				name, strings.Join(roles, ", "))
		}
	}

	return r, nil
}

// validateSchema checks the raw document against the embedded JSON schema
// before any semantic interpretation.
func validateSchema(data []byte) error {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	// Normalize YAML-decoded values into JSON-decoded ones so the schema
	// validator sees the types it expects.
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	var normalized any
	if err := json.NewDecoder(bytes.NewReader(buf)).Decode(&normalized); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("registry.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	schema, err := compiler.Compile("registry.schema.json")
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// validateDocument runs the semantic checks the schema cannot express.
func validateDocument(doc *Document) error {
	if doc.APIVersion != SpecVersion {
		return fmt.Errorf("apiVersion must be %q, got %q", SpecVersion, doc.APIVersion)
	}

	toolNames := make(map[string]struct{}, len(doc.Tools))
	for i, td := range doc.Tools {
		if _, dup := toolNames[td.Name]; dup {
			return fmt.Errorf("tools[%d]: duplicate tool %q", i, td.Name)
		}
		toolNames[td.Name] = struct{}{}
		if td.SideEffect != SideEffectRead && td.SideEffect != SideEffectMutate {
			return fmt.Errorf("tools[%d] (%q): sideEffect must be %q or %q",
				i, td.Name, SideEffectRead, SideEffectMutate)
		}
	}

	roles := make(map[string]struct{}, len(doc.Handlers))
	for i, h := range doc.Handlers {
		if _, dup := roles[h.Role]; dup {
			return fmt.Errorf("handlers[%d]: duplicate role %q", i, h.Role)
		}
		roles[h.Role] = struct{}{}

		if len(h.ChatTypes) == 0 {
			return fmt.Errorf("handlers[%d] (%q): chatTypes must not be empty", i, h.Role)
		}
		for _, ct := range h.ChatTypes {
			if !ct.Valid() {
				return fmt.Errorf("handlers[%d] (%q): unknown chat type %q", i, h.Role, ct)
			}
		}
		for _, tool := range h.Tools {
			if _, ok := toolNames[tool]; !ok {
				return fmt.Errorf("handlers[%d] (%q): references undefined tool %q", i, h.Role, tool)
			}
		}
	}

	if doc.DefaultHandler == "" {
		return fmt.Errorf("defaultHandler must be set")
	}
	def, ok := findHandler(doc, doc.DefaultHandler)
	if !ok {
		return fmt.Errorf("defaultHandler %q is not declared in handlers", doc.DefaultHandler)
	}
	for _, ct := range []chat.Type{chat.TypeMain, chat.TypeLeadership, chat.TypePrivate} {
		if !def.AllowsChat(ct) {
			return fmt.Errorf("defaultHandler %q must allow every chat type (missing %q)", def.Role, ct)
		}
	}

	cmdNames := make(map[string]struct{}, len(doc.Commands))
	for i, b := range doc.Commands {
		if _, dup := cmdNames[b.Name]; dup {
			return fmt.Errorf("commands[%d]: duplicate command %q", i, b.Name)
		}
		cmdNames[b.Name] = struct{}{}

		if _, ok := roles[b.Role]; !ok {
			return fmt.Errorf("commands[%d] (%q): references undefined role %q", i, b.Name, b.Role)
		}
		switch b.Entity {
		case EntityPlayer, EntityAdministrator, EntityAny:
		default:
			return fmt.Errorf("commands[%d] (%q): entity must be %q, %q, or %q",
				i, b.Name, EntityPlayer, EntityAdministrator, EntityAny)
		}
	}

	return nil
}

func findHandler(doc *Document, role string) (*HandlerDescriptor, bool) {
	for i := range doc.Handlers {
		if doc.Handlers[i].Role == role {
			return &doc.Handlers[i], true
		}
	}
	return nil, false
}

// Resolve returns the handler descriptor for the given role.
func (r *Registry) Resolve(role string) (*HandlerDescriptor, error) {
	h, ok := r.handlersByRole[role]
	if !ok {
		return nil, fmt.Errorf("registry: no handler registered for role %q", role)
	}
	return h, nil
}

// Default returns the free-form / command-discovery handler.
func (r *Registry) Default() *HandlerDescriptor {
	// Validated at load time, cannot fail.
	return r.handlersByRole[r.doc.DefaultHandler]
}

// List returns every handler allowed in the given chat type, in declaration
// order.
func (r *Registry) List(t chat.Type) []*HandlerDescriptor {
	var out []*HandlerDescriptor
	for i := range r.doc.Handlers {
		if r.doc.Handlers[i].AllowsChat(t) {
			out = append(out, &r.doc.Handlers[i])
		}
	}
	return out
}

// Authorize reports whether the given role may invoke the given tool. It is
// a pure lookup over the load-time index.
func (r *Registry) Authorize(role, toolName string) bool {
	tools, ok := r.allowed[role]
	if !ok {
		return false
	}
	_, ok = tools[toolName]
	return ok
}

// Tool returns the descriptor for the named tool.
func (r *Registry) Tool(name string) (*ToolDescriptor, bool) {
	td, ok := r.toolsByName[name]
	return td, ok
}

// Binding returns the command binding for a normalized command name.
func (r *Registry) Binding(command string) (*CommandBinding, bool) {
	b, ok := r.commandsByName[command]
	return b, ok
}

// CommandsFor returns the command bindings usable in the given chat type,
// sorted by command name. Used to build help and suggestion listings.
func (r *Registry) CommandsFor(t chat.Type) []*CommandBinding {
	var out []*CommandBinding
	for i := range r.doc.Commands {
		b := &r.doc.Commands[i]
		h, ok := r.handlersByRole[b.Role]
		if !ok {
			continue
		}
		if h.AllowsChat(t) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PlayerCommands returns the set of command names bound to the player
// entity, for the classifier's precedence rules.
func (r *Registry) PlayerCommands() map[string]struct{} {
	return r.commandsByEntity(EntityPlayer)
}

// AdministratorCommands returns the set of command names bound to the
// administrator entity.
func (r *Registry) AdministratorCommands() map[string]struct{} {
	return r.commandsByEntity(EntityAdministrator)
}

func (r *Registry) commandsByEntity(entity string) map[string]struct{} {
	out := make(map[string]struct{})
	for i := range r.doc.Commands {
		if r.doc.Commands[i].Entity == entity {
			out[r.doc.Commands[i].Name] = struct{}{}
		}
	}
	return out
}

// ToolNames returns the names of every declared tool, sorted.
func (r *Registry) ToolNames() []string {
	out := make([]string, 0, len(r.toolsByName))
	for name := range r.toolsByName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
