// Package tools declares the fixed tool set the remote model can invoke and
// the registry that dispatches its calls. Handlers are total functions from
// validated arguments to a result string: every failure path is a descriptive
// result, never an error that crosses the turn boundary.
package tools

import "context"

// ParamType is the type of a declared tool parameter. The schema protocol
// supports exactly two.
type ParamType string

const (
	TypeString      ParamType = "string"
	TypeStringArray ParamType = "array"
)

// Param declares one parameter of a tool.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
}

// Spec is the static declaration of a tool, sent to the remote service so it
// can select and invoke tools. Declared once at startup, never mutated.
type Spec struct {
	Name        string
	Description string
	Params      []Param
}

// Tool pairs a declaration with its handler.
type Tool interface {
	Spec() Spec
	// Execute runs the tool. The returned string is fed back into the
	// conversation verbatim; implementations report failures inside it.
	Execute(ctx context.Context, args map[string]any) string
}

// FuncTool wraps a plain function as a Tool.
type FuncTool struct {
	ToolSpec Spec
	Fn       func(ctx context.Context, args map[string]any) string
}

func (f *FuncTool) Spec() Spec { return f.ToolSpec }

func (f *FuncTool) Execute(ctx context.Context, args map[string]any) string {
	return f.Fn(ctx, args)
}

// StringArg extracts a string argument, tolerating absence.
func StringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
