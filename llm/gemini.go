package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient implements Client against the Google generative-language
// REST API (models/{model}:generateContent).
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGeminiClient creates a client for the given model id.
func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultGeminiBaseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *GeminiClient) Model() string { return c.model }

// Gemini API types
type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // "user" or "model"
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

// Generate makes a synchronous generateContent call.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	data, err := c.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ProtocolError{Reason: "unparseable response body: " + err.Error()}
	}
	return parseResponse(&resp)
}

func (c *GeminiClient) buildRequest(req Request) geminiRequest {
	out := geminiRequest{}
	if req.System != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleModel:
			parts := []geminiPart{}
			if m.Text != "" {
				parts = append(parts, geminiPart{Text: m.Text})
			}
			if m.Call != nil {
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{
					Name: m.Call.Name,
					Args: m.Call.Args,
				}})
			}
			out.Contents = append(out.Contents, geminiContent{Role: "model", Parts: parts})
		case RoleTool:
			// Function responses travel on the user role.
			out.Contents = append(out.Contents, geminiContent{Role: "user", Parts: []geminiPart{{
				FunctionResponse: &geminiFunctionResp{
					Name:     m.Result.Name,
					Response: map[string]any{"content": m.Result.Content},
				},
			}}})
		default:
			out.Contents = append(out.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Text}}})
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDecl, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		out.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return out
}

func parseResponse(resp *geminiResponse) (*Response, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &ProtocolError{Reason: "prompt blocked: " + resp.PromptFeedback.BlockReason}
	}
	if len(resp.Candidates) == 0 {
		return nil, &ProtocolError{Reason: "response contains no candidates"}
	}

	result := &Response{}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			result.Segments = append(result.Segments, part.Text)
		}
		if part.FunctionCall != nil {
			if result.Call != nil {
				return nil, &ProtocolError{Reason: "response contains more than one tool call"}
			}
			result.Call = &ToolCall{
				ID:   uuid.NewString(),
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}
		}
	}
	if len(result.Segments) == 0 && result.Call == nil {
		return nil, &ProtocolError{Reason: "response contains no usable content"}
	}
	return result, nil
}

func (c *GeminiClient) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			RetryAfter: retryAfterHint(resp.Header, data),
			Message:    errorMessage(data),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini API error %d: %s", resp.StatusCode, errorMessage(data))
	}
	return data, nil
}

// retryAfterHint extracts the server-suggested backoff from the Retry-After
// header or the RetryInfo detail in the error body. Zero means no hint.
func retryAfterHint(h http.Header, body []byte) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	var eb geminiErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		for _, d := range eb.Error.Details {
			if strings.HasSuffix(d.Type, "RetryInfo") && d.RetryDelay != "" {
				if dur, err := time.ParseDuration(d.RetryDelay); err == nil && dur > 0 {
					return dur
				}
			}
		}
	}
	return 0
}

func errorMessage(body []byte) string {
	var eb geminiErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
