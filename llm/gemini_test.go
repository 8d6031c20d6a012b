package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewGeminiClient("test-key", "test-model")
	c.baseURL = srv.URL
	return c
}

func textReply(segments ...string) string {
	parts := []map[string]any{}
	for _, s := range segments {
		parts = append(parts, map[string]any{"text": s})
	}
	body, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{{"content": map[string]any{"role": "model", "parts": parts}}},
	})
	return string(body)
}

func TestGeminiClient_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("text segments", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(textReply("thinking", "done")))
		})
		resp, err := c.Generate(ctx, Request{Messages: []Message{{Role: RoleUser, Text: "hi"}}})
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Segments) != 2 || resp.Segments[1] != "done" {
			t.Fatalf("unexpected segments: %v", resp.Segments)
		}
		if resp.Call != nil {
			t.Fatal("unexpected tool call")
		}
	})

	t.Run("function call with synthesized id", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[
				{"text":"checking the parser"},
				{"functionCall":{"name":"read_file_content","args":{"file_path":"src/parse.c"}}}
			]}}]}`))
		})
		resp, err := c.Generate(ctx, Request{})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Call == nil || resp.Call.Name != "read_file_content" {
			t.Fatalf("missing tool call: %+v", resp)
		}
		if resp.Call.ID == "" {
			t.Fatal("expected a synthesized call id")
		}
		if resp.Call.Args["file_path"] != "src/parse.c" {
			t.Fatalf("unexpected args: %v", resp.Call.Args)
		}
	})

	t.Run("multiple function calls rejected", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates":[{"content":{"parts":[
				{"functionCall":{"name":"a"}},{"functionCall":{"name":"b"}}
			]}}]}`))
		})
		_, err := c.Generate(ctx, Request{})
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
	})

	t.Run("empty response rejected", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates":[]}`))
		})
		_, err := c.Generate(ctx, Request{})
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
	})

	t.Run("blocked prompt rejected", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
		})
		_, err := c.Generate(ctx, Request{})
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		})
		_, err := c.Generate(ctx, Request{})
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProtocolError, got %v", err)
		}
	})

	t.Run("429 with Retry-After header", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
		})
		_, err := c.Generate(ctx, Request{})
		var rle *RateLimitError
		if !errors.As(err, &rle) {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
		if rle.RetryAfter != 7*time.Second {
			t.Fatalf("unexpected retry-after: %s", rle.RetryAfter)
		}
	})

	t.Run("429 with RetryInfo detail", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"quota","details":[
				{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"21s"}
			]}}`))
		})
		_, err := c.Generate(ctx, Request{})
		var rle *RateLimitError
		if !errors.As(err, &rle) {
			t.Fatalf("expected RateLimitError, got %v", err)
		}
		if rle.RetryAfter != 21*time.Second {
			t.Fatalf("unexpected retry-after: %s", rle.RetryAfter)
		}
	})

	t.Run("non-retriable status is a plain error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"invalid argument"}}`))
		})
		_, err := c.Generate(ctx, Request{})
		if err == nil {
			t.Fatal("expected error")
		}
		var rle *RateLimitError
		if errors.As(err, &rle) {
			t.Fatal("400 must not be classified as a rate limit")
		}
	})
}

func TestGeminiClient_BuildRequest(t *testing.T) {
	var got geminiRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(textReply("ok")))
	})

	req := Request{
		System: "investigate the codebase",
		Messages: []Message{
			{Role: RoleUser, Text: "start"},
			{Role: RoleModel, Text: "reading", Call: &ToolCall{ID: "c1", Name: "read_file_content", Args: map[string]any{"file_path": "a.c"}}},
			{Role: RoleTool, Result: &ToolResult{ID: "c1", Name: "read_file_content", Content: "int main..."}},
		},
		Tools: []ToolSchema{{Name: "read_file_content", Description: "Read a file", Parameters: map[string]any{"type": "object"}}},
	}
	if _, err := c.Generate(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "investigate the codebase" {
		t.Fatalf("system instruction not carried: %+v", got.SystemInstruction)
	}
	if len(got.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(got.Contents))
	}
	model := got.Contents[1]
	if model.Role != "model" || len(model.Parts) != 2 || model.Parts[1].FunctionCall == nil {
		t.Fatalf("model turn not encoded: %+v", model)
	}
	fr := got.Contents[2]
	if fr.Role != "user" || fr.Parts[0].FunctionResponse == nil {
		t.Fatalf("tool result must ride the user role: %+v", fr)
	}
	if fr.Parts[0].FunctionResponse.Response["content"] != "int main..." {
		t.Fatalf("result content not carried: %+v", fr.Parts[0].FunctionResponse)
	}
	if len(got.Tools) != 1 || got.Tools[0].FunctionDeclarations[0].Name != "read_file_content" {
		t.Fatalf("tool declarations not carried: %+v", got.Tools)
	}
}
