package tools

import (
	"context"

	"autoprobe/sandbox"
)

// RegisterShellTool registers execute_shell_command. The working directory is
// always the sandbox root; the model cannot choose it. Containment of what
// the command does comes from the surrounding isolation, not from inspecting
// the command string.
func RegisterShellTool(r *Registry, ex *sandbox.ShellExecutor) {
	r.Register(&FuncTool{
		ToolSpec: Spec{
			Name: "execute_shell_command",
			Description: "Executes a shell command in the project root and returns its exit code, stdout, and stderr. " +
				"Use this for compilation, running binaries, dynamic analysis, package installs, and complex searches.",
			Params: []Param{
				{Name: "command", Type: TypeString, Required: true, Description: "The shell command to execute"},
			},
		},
		Fn: func(ctx context.Context, args map[string]any) string {
			res := ex.Execute(ctx, StringArg(args, "command"))
			return res.Format(ex.Timeout())
		},
	})
}
