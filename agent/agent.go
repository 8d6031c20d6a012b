package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"autoprobe/llm"
	"autoprobe/sandbox"
	"autoprobe/tools"
)

// Outcome classifies how a run ended. Fatal errors are returned as errors,
// not outcomes, so callers can always tell "gave up" from "failed".
type Outcome int

const (
	OutcomeConcluded Outcome = iota // the model delivered a final report
	OutcomeExhausted                // turn budget ran out first
)

func (o Outcome) String() string {
	if o == OutcomeExhausted {
		return "exhausted"
	}
	return "concluded"
}

// RunResult is the terminal value of a completed (non-fatal) run.
type RunResult struct {
	Outcome   Outcome
	Report    string // empty when exhausted
	TurnsUsed int
}

// Sender issues one request to the reasoning service. Satisfied by
// *llm.Transport.
type Sender interface {
	Send(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Transcript receives the audit record of a run. The loop calls it from a
// single goroutine.
type Transcript interface {
	Request(turn int, messages []llm.Message)
	Response(turn int, segments []string, call *llm.ToolCall)
	ToolResult(turn int, result llm.ToolResult)
	Outcome(status, detail string)
}

type nopTranscript struct{}

func (nopTranscript) Request(int, []llm.Message)            {}
func (nopTranscript) Response(int, []string, *llm.ToolCall) {}
func (nopTranscript) ToolResult(int, llm.ToolResult)        {}
func (nopTranscript) Outcome(string, string)                {}

// Controller owns the conversation state and drives the turn loop. The
// conversation is never shared: tool results enter it only through the
// loop itself.
type Controller struct {
	cfg        Config
	sender     Sender
	registry   *tools.Registry
	sandbox    *sandbox.Sandbox
	transcript Transcript
	logger     *slog.Logger

	messages []llm.Message
}

func New(cfg Config, sender Sender, registry *tools.Registry, sb *sandbox.Sandbox, tr Transcript, logger *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil {
		tr = nopTranscript{}
	}
	return &Controller{
		cfg:        cfg,
		sender:     sender,
		registry:   registry,
		sandbox:    sb,
		transcript: tr,
		logger:     logger,
	}, nil
}

// Messages returns the conversation accumulated so far.
func (c *Controller) Messages() []llm.Message { return c.messages }

// Run drives the investigation to a terminal state. A nil error means the
// run concluded or exhausted its budget; any returned error is fatal and
// names the turn it happened on.
func (c *Controller) Run(ctx context.Context) (*RunResult, error) {
	c.messages = []llm.Message{{
		Role: llm.RoleUser,
		Text: initialPrompt(c.cfg.Mission, tools.DirectoryTree(c.sandbox)),
	}}
	schemas := toolSchemas(c.registry.Specs())

	for turn := 1; turn <= c.cfg.TurnBudget; turn++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("turn %d/%d: %w", turn, c.cfg.TurnBudget, ctx.Err())
		default:
		}

		c.logger.Info("turn starting", "turn", turn, "budget", c.cfg.TurnBudget, "messages", len(c.messages))
		c.transcript.Request(turn, c.messages)

		resp, err := c.sender.Send(ctx, llm.Request{
			System:   systemPrompt,
			Messages: c.messages,
			Tools:    schemas,
		})
		if err != nil {
			c.transcript.Outcome("fatal", err.Error())
			return nil, fmt.Errorf("turn %d/%d: %w", turn, c.cfg.TurnBudget, err)
		}
		c.transcript.Response(turn, resp.Segments, resp.Call)

		if resp.Call == nil {
			report := finalReport(resp.Segments)
			c.logger.Info("investigation concluded", "turn", turn, "report_bytes", len(report))
			c.transcript.Outcome(OutcomeConcluded.String(), fmt.Sprintf("turn %d", turn))
			return &RunResult{Outcome: OutcomeConcluded, Report: report, TurnsUsed: turn}, nil
		}

		// Text alongside a call is reasoning, never a report.
		reasoning := strings.TrimSpace(strings.Join(resp.Segments, "\n"))
		c.logger.Info("dispatching tool", "turn", turn, "tool", resp.Call.Name)
		if c.cfg.Verbose && reasoning != "" {
			c.logger.Debug("model reasoning", "turn", turn, "text", reasoning)
		}

		result := llm.ToolResult{
			ID:      resp.Call.ID,
			Name:    resp.Call.Name,
			Content: c.registry.Dispatch(ctx, resp.Call.Name, resp.Call.Args),
		}
		c.messages = append(c.messages,
			llm.Message{Role: llm.RoleModel, Text: reasoning, Call: resp.Call},
			llm.Message{Role: llm.RoleTool, Result: &result},
		)
		c.transcript.ToolResult(turn, result)
	}

	c.logger.Warn("turn budget exhausted", "budget", c.cfg.TurnBudget)
	c.transcript.Outcome(OutcomeExhausted.String(), fmt.Sprintf("budget %d", c.cfg.TurnBudget))
	return &RunResult{Outcome: OutcomeExhausted, TurnsUsed: c.cfg.TurnBudget}, nil
}

// finalReport picks the authoritative text from a concluding turn: the last
// non-empty segment wins over earlier partial reasoning.
func finalReport(segments []string) string {
	for i := len(segments) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segments[i]); s != "" {
			return s
		}
	}
	return "Agent finished without a textual report."
}

func toolSchemas(specs []tools.Spec) []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(specs))
	for _, s := range specs {
		props := map[string]any{}
		var required []string
		for _, p := range s.Params {
			switch p.Type {
			case tools.TypeStringArray:
				props[p.Name] = map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": p.Description,
				}
			default:
				props[p.Name] = map[string]any{
					"type":        "string",
					"description": p.Description,
				}
			}
			if p.Required {
				required = append(required, p.Name)
			}
		}
		params := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			params["required"] = required
		}
		out = append(out, llm.ToolSchema{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  params,
		})
	}
	return out
}
