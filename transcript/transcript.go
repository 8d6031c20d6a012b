// Package transcript writes the append-only audit log of a run: every
// request, response, tool call, and tool result, turn-indexed and
// timestamped. The file is written once and never read back by the system.
package transcript

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"autoprobe/llm"
)

const previewLimit = 2000

// Logger appends human-readable records to a single transcript file. It is
// the file's only writer for the lifetime of the run.
type Logger struct {
	mu   sync.Mutex
	f    *os.File
	path string
	seen int // messages already recorded in full
}

// New creates the transcript file. The file must not already exist; run ids
// are unique, so a collision means two runs share a log directory entry.
func New(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}
	return &Logger{f: f, path: path}, nil
}

func (l *Logger) Path() string { return l.path }

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// Request records the outgoing conversation for a turn: the shape of the
// full message set, plus the text of any message appearing for the first
// time. Model and tool messages are recorded in full when they are produced
// (Response and ToolResult), so first-appearance text here covers the user
// messages — in particular the initial mission-and-tree prompt.
func (l *Logger) Request(turn int, messages []llm.Message) {
	var roles []string
	for _, m := range messages {
		roles = append(roles, m.Role)
	}
	l.write(turn, ">>", fmt.Sprintf("request: %d messages [%s]", len(messages), strings.Join(roles, " ")))

	for i := l.seen; i < len(messages); i++ {
		if m := messages[i]; m.Role == llm.RoleUser {
			l.write(turn, ">>", "user text: "+preview(m.Text))
		}
	}
	l.seen = len(messages)
}

// Response records the decoded reply: each text segment and the tool call,
// if any.
func (l *Logger) Response(turn int, segments []string, call *llm.ToolCall) {
	for _, s := range segments {
		l.write(turn, "<<", "text: "+preview(s))
	}
	if call != nil {
		l.write(turn, "<<", fmt.Sprintf("tool call %s id=%s args=%v", call.Name, call.ID, call.Args))
	}
}

// ToolResult records the string handed back to the model.
func (l *Logger) ToolResult(turn int, result llm.ToolResult) {
	l.write(turn, "--", fmt.Sprintf("tool result %s id=%s (%d bytes): %s",
		result.Name, result.ID, len(result.Content), preview(result.Content)))
}

// Outcome records the terminal state of the run.
func (l *Logger) Outcome(status, detail string) {
	l.write(0, "==", fmt.Sprintf("outcome: %s (%s)", status, detail))
}

func (l *Logger) write(turn int, dir, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().UTC().Format(time.RFC3339)
	if turn > 0 {
		fmt.Fprintf(l.f, "[%s] turn %d %s %s\n", ts, turn, dir, msg)
	} else {
		fmt.Fprintf(l.f, "[%s] %s %s\n", ts, dir, msg)
	}
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) > previewLimit {
		return s[:previewLimit] + "...(truncated)"
	}
	return s
}
