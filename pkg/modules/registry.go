// Package modules hosts the action modules the executor dispatches to and
// the registry that validates params against each action's JSON Schema.
package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Handler executes one action invocation. Params have already passed
// schema validation. Handlers must honour ctx cancellation.
type Handler func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

// ActionSpec declares one action a module exposes.
type ActionSpec struct {
	Name        string
	Description string
	// ParamsSchema is a JSON Schema document for the params object.
	// Empty means the action takes no params.
	ParamsSchema json.RawMessage
	Handler      Handler
}

// Module is a named bundle of actions.
type Module interface {
	ID() string
	Actions() []ActionSpec
}

// ModuleManifest is the discovery form served on /context and /modules.
type ModuleManifest struct {
	ModuleID string           `json:"module_id"`
	Actions  []ActionManifest `json:"actions"`
}

// ActionManifest describes one action for discovery.
type ActionManifest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	ParamsSchema json.RawMessage `json:"params_schema,omitempty"`
}

// UnknownActionError reports a dispatch to an unregistered target.
type UnknownActionError struct {
	Module string
	Action string
}

func (e *UnknownActionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("unknown module %q", e.Module)
	}
	return fmt.Sprintf("unknown action %s.%s", e.Module, e.Action)
}

// ParamsError reports params that failed schema validation.
type ParamsError struct {
	Module string
	Action string
	Cause  error
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("invalid params for %s.%s: %v", e.Module, e.Action, e.Cause)
}

func (e *ParamsError) Unwrap() error { return e.Cause }

type registeredAction struct {
	spec   ActionSpec
	schema *jsonschema.Schema
}

// Registry maps (module, action) to handlers. Registration happens at
// startup; dispatch is concurrent.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]map[string]*registeredAction
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]map[string]*registeredAction)}
}

// Register adds a module, compiling every action's params schema.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := m.ID()
	if _, exists := r.modules[id]; exists {
		return fmt.Errorf("module %q already registered", id)
	}
	actions := make(map[string]*registeredAction)
	for _, spec := range m.Actions() {
		if _, dup := actions[spec.Name]; dup {
			return fmt.Errorf("module %q declares action %q twice", id, spec.Name)
		}
		ra := &registeredAction{spec: spec}
		if len(spec.ParamsSchema) > 0 {
			schema, err := compileSchema(id, spec.Name, spec.ParamsSchema)
			if err != nil {
				return err
			}
			ra.schema = schema
		}
		actions[spec.Name] = ra
	}
	r.modules[id] = actions
	r.order = append(r.order, id)
	return nil
}

func compileSchema(module, action string, doc json.RawMessage) (*jsonschema.Schema, error) {
	var schemaDoc any
	if err := json.Unmarshal(doc, &schemaDoc); err != nil {
		return nil, fmt.Errorf("invalid schema for %s.%s: %w", module, action, err)
	}
	c := jsonschema.NewCompiler()
	name := fmt.Sprintf("bridge://%s/%s/params.json", module, action)
	if err := c.AddResource(name, schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to add schema for %s.%s: %w", module, action, err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s.%s: %w", module, action, err)
	}
	return schema, nil
}

// Has reports whether the (module, action) pair is registered.
func (r *Registry) Has(module, action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actions, ok := r.modules[module]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// ValidateParams checks params against the action's schema without
// executing it. Used at admission so malformed plans fail fast.
func (r *Registry) ValidateParams(module, action string, params json.RawMessage) error {
	r.mu.RLock()
	actions, ok := r.modules[module]
	if !ok {
		r.mu.RUnlock()
		return &UnknownActionError{Module: module}
	}
	ra, ok := actions[action]
	r.mu.RUnlock()
	if !ok {
		return &UnknownActionError{Module: module, Action: action}
	}
	if ra.schema == nil {
		return nil
	}

	var value any
	if len(params) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(params, &value); err != nil {
		return &ParamsError{Module: module, Action: action, Cause: err}
	}
	if err := ra.schema.Validate(value); err != nil {
		return &ParamsError{Module: module, Action: action, Cause: err}
	}
	return nil
}

// Dispatch validates params and runs the handler.
func (r *Registry) Dispatch(ctx context.Context, module, action string, params json.RawMessage) (json.RawMessage, error) {
	if err := r.ValidateParams(module, action, params); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ra := r.modules[module][action]
	r.mu.RUnlock()
	return ra.spec.Handler(ctx, params)
}

// Manifest returns all modules in registration order with their actions
// sorted by name.
func (r *Registry) Manifest() []ModuleManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModuleManifest, 0, len(r.order))
	for _, id := range r.order {
		actions := r.modules[id]
		names := make([]string, 0, len(actions))
		for name := range actions {
			names = append(names, name)
		}
		sort.Strings(names)

		m := ModuleManifest{ModuleID: id}
		for _, name := range names {
			spec := actions[name].spec
			m.Actions = append(m.Actions, ActionManifest{
				Name:         spec.Name,
				Description:  spec.Description,
				ParamsSchema: spec.ParamsSchema,
			})
		}
		out = append(out, m)
	}
	return out
}
