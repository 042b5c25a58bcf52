// Package functions provides the registry of local functions the assistant
// can call during a session. Functions are pure computations: they accept
// parsed arguments and return a result map, with no side effects beyond the
// return value.
package functions

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Handler executes one function with parsed arguments and returns its result.
type Handler func(args map[string]any) map[string]any

// Definition is the wire-format declaration of a function tool, exposed to
// the remote service during session configuration.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Registry maps function names to handlers with thread-safe registration and
// lookup. A registry is built once at startup and shared read-only by all
// sessions.
type Registry struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	definitions map[string]Definition
}

// NewRegistry creates a registry pre-populated with the built-in functions.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		handlers:    make(map[string]Handler),
		definitions: make(map[string]Definition),
	}
	for _, b := range builtins() {
		if err := r.Register(b.def, b.handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a function to the registry. The parameter schema is compiled
// so malformed tool declarations fail at startup rather than at
// session-configure time.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("functions: definition name is required")
	}
	if handler == nil {
		return fmt.Errorf("functions: handler is required for %s", def.Name)
	}
	if len(def.Parameters) > 0 {
		if _, err := jsonschema.CompileString(def.Name+".json", string(def.Parameters)); err != nil {
			return fmt.Errorf("functions: invalid parameter schema for %s: %w", def.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Name] = handler
	r.definitions[def.Name] = def
	return nil
}

// Get returns a handler by name and whether it was found.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}

// Execute runs a function by name. Failures never escape: an unknown name,
// a panicking handler, or a nil result all produce a result map carrying an
// "error" key so the turn can still proceed.
func (r *Registry) Execute(name string, args Arguments) (result map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			result = map[string]any{"error": fmt.Sprintf("function %s failed: %v", name, rec)}
		}
	}()

	handler, ok := r.Get(name)
	if !ok {
		return map[string]any{"error": "Unknown function " + name}
	}

	result = handler(args.Parse())
	if result == nil {
		result = map[string]any{"error": "function " + name + " returned no result"}
	}
	return result
}

// Definitions returns all registered tool declarations sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
