package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultShellTimeout is the hard wall-clock ceiling for a single command.
const DefaultShellTimeout = 90 * time.Second

// crashSignatures are stderr substrings worth flagging explicitly so the
// model does not have to re-derive them from raw output.
var crashSignatures = []string{
	"AddressSanitizer",
	"Segmentation fault",
	"panic:",
	"core dumped",
	"runtime error:",
	"UndefinedBehaviorSanitizer",
}

// ExecResult is the outcome of one shell command.
type ExecResult struct {
	ExitCode       int
	Stdout         string
	Stderr         string
	TimedOut       bool
	CrashSuspected bool
}

// ShellExecutor runs command strings through sh -c, rooted at the sandbox
// root. It performs no command-content filtering: shell syntax cannot be
// reliably inspected, so containment is the job of the surrounding isolation
// plus the path sandbox, never of string matching here.
type ShellExecutor struct {
	workdir        string
	timeout        time.Duration
	maxOutputBytes int
}

// NewShellExecutor creates an executor rooted at the sandbox root.
func NewShellExecutor(sb *Sandbox, timeout time.Duration, maxOutputBytes int) *ShellExecutor {
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	if maxOutputBytes <= 0 {
		maxOutputBytes = 100_000
	}
	return &ShellExecutor{
		workdir:        sb.Root(),
		timeout:        timeout,
		maxOutputBytes: maxOutputBytes,
	}
}

// Execute runs command and waits up to the configured timeout. On expiry or
// context cancellation the whole process group is SIGKILLed so background
// children cannot outlive the run. Execution failures are results, not
// errors; the only way to learn what happened is the ExecResult.
func (e *ShellExecutor) Execute(ctx context.Context, command string) ExecResult {
	if strings.TrimSpace(command) == "" {
		return ExecResult{ExitCode: 1, Stderr: "command must be a non-empty string"}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.workdir
	// Give the shell its own process group so the kill below reaps
	// everything it spawned, not just the shell itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := ExecResult{
		Stdout: truncateOutput(stdout.String(), e.maxOutputBytes),
		Stderr: truncateOutput(stderr.String(), e.maxOutputBytes),
	}
	res.CrashSuspected = scanCrashSignatures(res.Stderr)

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = 124
		return res
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = 1
			if res.Stderr == "" {
				res.Stderr = "failed to launch: " + err.Error()
			}
		}
	}
	return res
}

// Timeout returns the configured wall-clock ceiling.
func (e *ShellExecutor) Timeout() time.Duration {
	return e.timeout
}

// Format renders a result as the observation string fed back to the model:
// exit code, labeled streams, and an explicit crash marker when the stderr
// scan fired.
func (r ExecResult) Format(timeout time.Duration) string {
	if r.TimedOut {
		return fmt.Sprintf("Error: command timed out after %.0f seconds. It may be a long-running process or it may have hung.", timeout.Seconds())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Exit Code: %d\n", r.ExitCode)
	if r.Stdout != "" {
		b.WriteString("--- STDOUT ---\n")
		b.WriteString(strings.TrimRight(r.Stdout, "\n"))
		b.WriteString("\n")
	}
	if r.Stderr != "" {
		b.WriteString("--- STDERR ---\n")
		b.WriteString(strings.TrimRight(r.Stderr, "\n"))
		b.WriteString("\n")
	}
	if r.CrashSuspected {
		b.WriteString("\n*** POTENTIAL CRASH DETECTED in STDERR. Analyze the output carefully. ***")
	}
	return strings.TrimRight(b.String(), "\n")
}

func scanCrashSignatures(stderr string) bool {
	for _, sig := range crashSignatures {
		if strings.Contains(stderr, sig) {
			return true
		}
	}
	return false
}

func truncateOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n... Output truncated at %d bytes.", max)
}
