package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Registry is the closed mapping from tool name to handler. The set is fixed
// at startup; Register panics on a duplicate or malformed declaration so a
// bad tool table fails loudly at boot rather than mid-run.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. The declaration is validated eagerly: a name clash,
// an empty name, or a parameter with an unknown type is a programming error.
func (r *Registry) Register(t Tool) {
	spec := t.Spec()
	if spec.Name == "" {
		panic("tools: spec with empty name")
	}
	if _, dup := r.tools[spec.Name]; dup {
		panic(fmt.Sprintf("tools: duplicate tool %q", spec.Name))
	}
	for _, p := range spec.Params {
		if p.Type != TypeString && p.Type != TypeStringArray {
			panic(fmt.Sprintf("tools: tool %q param %q has unsupported type %q", spec.Name, p.Name, p.Type))
		}
	}
	r.tools[spec.Name] = t
	r.order = append(r.order, spec.Name)
}

// Specs returns every declaration in registration order.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch validates args against the named tool's declaration and runs it.
// It always returns a result string: unknown tools, missing or mistyped
// arguments, and handler failures all come back as text the model can read
// and recover from.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) string {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: tool %q not found. Available tools: %s", name, strings.Join(r.Names(), ", "))
	}
	if msg := validateArgs(tool.Spec(), args); msg != "" {
		return "Error: " + msg
	}
	return tool.Execute(ctx, args)
}

// validateArgs checks presence and type of each declared parameter. The
// remote service is expected to conform to the schema, but its output is
// untrusted input and is checked anyway.
func validateArgs(spec Spec, args map[string]any) string {
	for _, p := range spec.Params {
		v, present := args[p.Name]
		if !present || v == nil {
			if p.Required {
				return fmt.Sprintf("tool %q requires argument %q", spec.Name, p.Name)
			}
			continue
		}
		switch p.Type {
		case TypeString:
			if _, ok := v.(string); !ok {
				return fmt.Sprintf("tool %q argument %q must be a string, got %T", spec.Name, p.Name, v)
			}
		case TypeStringArray:
			arr, ok := v.([]any)
			if !ok {
				return fmt.Sprintf("tool %q argument %q must be an array of strings, got %T", spec.Name, p.Name, v)
			}
			for _, item := range arr {
				if _, ok := item.(string); !ok {
					return fmt.Sprintf("tool %q argument %q must contain only strings", spec.Name, p.Name)
				}
			}
		}
	}
	return ""
}
