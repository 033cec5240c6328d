package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned by the registry for unregistered tool names.
var ErrNotFound = errors.New("tool not found")

// Result is the uniform outcome of one tool invocation. ExitCode -1 is the
// hard-failure sentinel (timeout, broken sandbox) the evaluator never retries
// past its fast path.
type Result struct {
	Output   string
	Error    string
	ExitCode int
}

func (r Result) Success() bool {
	return r.ExitCode == 0 && r.Error == ""
}

// Tool is a named external capability with a uniform execute contract.
// Execute returns a Result for normal outcomes; the error return is reserved
// for unexpected faults (the invocation itself broke, not the work).
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, input map[string]any) (Result, error)
}

// Registry manages the set of available tools.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q is already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrNotFound, name, strings.Join(r.List(), ", "))
	}
	return t, nil
}

func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// List returns registered names in registration order.
func (r *Registry) List() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Subset builds a registry restricted to the named tools, skipping any that
// are not registered here. Used by agents with a narrowed capability set.
func (r *Registry) Subset(names []string) *Registry {
	sub := NewRegistry()
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			_ = sub.Register(t)
		}
	}
	return sub
}

// Describe renders "name: description" lines for planner and routing prompts.
func (r *Registry) Describe() string {
	var lines []string
	for _, name := range r.order {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, r.tools[name].Description()))
	}
	return strings.Join(lines, "\n")
}

// Required returns the required input keys for a registered tool, or nil
// for unknown names. Satisfies the plan validator's registry view.
func (r *Registry) Required(name string) []string {
	t, ok := r.tools[name]
	if !ok {
		return nil
	}
	return RequiredKeys(t)
}

// RequiredKeys reads the required key list out of a tool's input schema.
func RequiredKeys(t Tool) []string {
	schema := t.InputSchema()
	if schema == nil {
		return nil
	}
	var keys []string
	switch req := schema["required"].(type) {
	case []string:
		keys = append(keys, req...)
	case []any:
		for _, v := range req {
			if s, ok := v.(string); ok {
				keys = append(keys, s)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
