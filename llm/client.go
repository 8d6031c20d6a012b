// Package llm talks to the remote reasoning service: wire types for the
// conversation, a Gemini HTTP client, and a Transport that adds pacing and
// bounded rate-limit retry around any Client.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Conversation roles. RoleTool messages carry exactly one ToolResult and
// always follow the RoleModel message whose call they answer.
const (
	RoleUser  = "user"
	RoleModel = "model"
	RoleTool  = "tool"
)

// Message is one entry in the conversation sent to the service. A model
// message may carry text, a tool call, or both; a tool message carries only
// a Result.
type Message struct {
	Role   string
	Text   string
	Call   *ToolCall
	Result *ToolResult
}

// ToolCall is a tool invocation requested by the service. Calls are never
// fabricated locally; the ID is synthesized when the service omits one.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the opaque outcome string fed back for a ToolCall. The
// content is never re-parsed locally.
type ToolResult struct {
	ID      string
	Name    string
	Content string
}

// ToolSchema declares one tool to the service. Parameters is a JSON-schema
// object built once at startup from the registry's specs.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one generation call: the full conversation so far plus the
// static tool declarations.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSchema
}

// Response is the decoded service reply: ordered text segments and at most
// one tool call. More than one call in a reply is a protocol violation and
// never reaches this type.
type Response struct {
	Segments []string
	Call     *ToolCall
}

// Client generates one response for a conversation. Implementations return
// *RateLimitError for throttling and *ProtocolError for undecodable replies;
// everything else is a plain transport failure.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// RateLimitError is a throttling signal from the service. RetryAfter is the
// server-suggested wait, zero when the server did not suggest one.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return "rate limited: " + e.Message
}

// ProtocolError is a reply that decoded but violates the response shape the
// loop depends on (no usable content, multiple tool calls, blocked prompt).
// It is never retried.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol violation: " + e.Reason
}
