package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xraph/weave"
	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/nodes/llm"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/store/memory"
	"github.com/xraph/weave/stream"
)

const testUserID = "user-1"

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// newChatServer serves a canned OpenAI-style chat completion and
// records the last request.
func newChatServer(t *testing.T, text string) (*httptest.Server, *chatRequest, *string) {
	t.Helper()
	var last chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&last)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": text},
					"finish_reason": "stop",
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &last, &auth
}

func newManager(t *testing.T) (*credential.Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	cipher, err := credential.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return credential.NewManager(store, cipher), store
}

func newRequest(t *testing.T, store *memory.Store, nodeType graph.NodeType, data map[string]any, runCtx executor.Context) *executor.Request {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if runCtx == nil {
		runCtx = executor.Context{}
	}
	return &executor.Request{
		NodeID:    "node-1",
		Type:      nodeType,
		Data:      data,
		Context:   runCtx,
		UserID:    testUserID,
		Step:      step.NewRuntime(id.NewExecutionID(), store, logger),
		Publisher: stream.NopPublisher{},
	}
}

func TestOpenAIValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{
			name: "missing variable name",
			data: map[string]any{"userPrompt": "hi", "credentialId": "x"},
			want: "OpenAI node: No variable name configured",
		},
		{
			name: "missing user prompt",
			data: map[string]any{"variableName": "ai", "credentialId": "x"},
			want: "OpenAI node: No user prompt configured",
		},
		{
			name: "missing credential id",
			data: map[string]any{"variableName": "ai", "userPrompt": "hi"},
			want: "OpenAI node: No credential ID configured",
		},
	}

	creds, store := newManager(t)
	e := llm.NewOpenAI(creds)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, store, graph.NodeOpenAI, tt.data, nil)
			_, err := e.Execute(context.Background(), req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
			if !weave.IsNonRetriable(err) {
				t.Error("configuration error should be non-retriable")
			}
		})
	}
}

func TestOpenAIUnknownCredential(t *testing.T) {
	creds, store := newManager(t)
	e := llm.NewOpenAI(creds)

	req := newRequest(t, store, graph.NodeOpenAI, map[string]any{
		"variableName": "ai",
		"userPrompt":   "hi",
		"credentialId": id.NewCredentialID().String(),
	}, nil)

	_, err := e.Execute(context.Background(), req)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "OpenAI node: Credential not found") {
		t.Errorf("error = %q", err)
	}
	if !weave.IsNonRetriable(err) {
		t.Error("missing credential should be non-retriable")
	}
}

func TestOpenAICredentialOwnershipEnforced(t *testing.T) {
	creds, store := newManager(t)
	other, err := creds.Save(context.Background(), "someone-else", "openai", "sk-other")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	e := llm.NewOpenAI(creds)
	req := newRequest(t, store, graph.NodeOpenAI, map[string]any{
		"variableName": "ai",
		"userPrompt":   "hi",
		"credentialId": other.ID.String(),
	}, nil)

	_, err = e.Execute(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "Credential not found") {
		t.Errorf("error = %v, want credential not found", err)
	}
}

func TestOpenAIGeneratesText(t *testing.T) {
	srv, last, auth := newChatServer(t, "generated answer")

	creds, store := newManager(t)
	saved, err := creds.Save(context.Background(), testUserID, "openai", "sk-test-key")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	e := llm.NewOpenAI(creds, llm.WithBaseURL(srv.URL))
	req := newRequest(t, store, graph.NodeOpenAI, map[string]any{
		"variableName": "ai",
		"model":        "gpt-4o-mini",
		"userPrompt":   "Summarize {{topic}}",
		"credentialId": saved.ID.String(),
	}, executor.Context{"topic": "quarterly sales"})

	out, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	result, ok := out["ai"].(map[string]any)
	if !ok || result["text"] != "generated answer" {
		t.Errorf("out[ai] = %v, want generated text", out["ai"])
	}

	if *auth != "Bearer sk-test-key" {
		t.Errorf("authorization = %q", *auth)
	}
	if last.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", last.Model)
	}
	if len(last.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(last.Messages))
	}
	if last.Messages[0].Role != "system" || last.Messages[0].Content != llm.DefaultSystemPrompt {
		t.Errorf("system message = %+v", last.Messages[0])
	}
	if last.Messages[1].Role != "user" || last.Messages[1].Content != "Summarize quarterly sales" {
		t.Errorf("user message = %+v", last.Messages[1])
	}
}

func TestSystemPromptRendered(t *testing.T) {
	srv, last, _ := newChatServer(t, "ok")

	creds, store := newManager(t)
	saved, _ := creds.Save(context.Background(), testUserID, "gemini", "key")

	e := llm.NewGemini(creds, llm.WithBaseURL(srv.URL))
	req := newRequest(t, store, graph.NodeGemini, map[string]any{
		"variableName": "ai",
		"systemPrompt": "Answer as {{persona}}",
		"userPrompt":   "hi",
		"credentialId": saved.ID.String(),
	}, executor.Context{"persona": "a pirate"})

	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if last.Messages[0].Content != "Answer as a pirate" {
		t.Errorf("system message = %q", last.Messages[0].Content)
	}
}

func TestAnthropicUsesConfiguredKey(t *testing.T) {
	srv, _, auth := newChatServer(t, "claude says hi")

	_, store := newManager(t)
	e := llm.NewAnthropic("sk-ant-key", llm.WithBaseURL(srv.URL))
	req := newRequest(t, store, graph.NodeAnthropic, map[string]any{
		"variableName": "ai",
		"userPrompt":   "hi",
	}, nil)

	out, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out["ai"].(map[string]any)["text"] != "claude says hi" {
		t.Errorf("out[ai] = %v", out["ai"])
	}
	if *auth != "Bearer sk-ant-key" {
		t.Errorf("authorization = %q", *auth)
	}
}

func TestAnthropicMissingKey(t *testing.T) {
	_, store := newManager(t)
	e := llm.NewAnthropic("")
	req := newRequest(t, store, graph.NodeAnthropic, map[string]any{
		"variableName": "ai",
		"userPrompt":   "hi",
	}, nil)

	_, err := e.Execute(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "Anthropic node: No API key configured") {
		t.Errorf("error = %v", err)
	}
	if !weave.IsNonRetriable(err) {
		t.Error("missing key should be non-retriable")
	}
}

func TestModelCallReplaysFromCheckpoint(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "once"}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	creds, store := newManager(t)
	saved, _ := creds.Save(context.Background(), testUserID, "openai", "key")

	e := llm.NewOpenAI(creds, llm.WithBaseURL(srv.URL))
	req := newRequest(t, store, graph.NodeOpenAI, map[string]any{
		"variableName": "ai",
		"userPrompt":   "hi",
		"credentialId": saved.ID.String(),
	}, nil)

	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if calls != 1 {
		t.Errorf("model called %d times, want 1", calls)
	}
}

func TestRegisterAllBindsModelTypes(t *testing.T) {
	creds, _ := newManager(t)
	reg := executor.NewRegistry()
	llm.RegisterAll(reg, creds, "sk-ant")

	for _, nt := range []graph.NodeType{graph.NodeOpenAI, graph.NodeGemini, graph.NodeAnthropic} {
		if _, err := reg.Resolve(nt); err != nil {
			t.Errorf("Resolve(%s): %v", nt, err)
		}
	}
}
