package chat_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/weave"
	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/nodes/chat"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/store/memory"
	"github.com/xraph/weave/stream"
)

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []stream.Status
}

func (p *recordingPublisher) Publish(_ context.Context, _, _ string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := data.(stream.StatusEvent); ok {
		p.statuses = append(p.statuses, ev.Status)
	}
	return nil
}

func newRequest(t *testing.T, nodeType graph.NodeType, data map[string]any, runCtx executor.Context) (*executor.Request, *recordingPublisher) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &recordingPublisher{}
	if runCtx == nil {
		runCtx = executor.Context{}
	}
	return &executor.Request{
		NodeID:    "node-1",
		Type:      nodeType,
		Data:      data,
		Context:   runCtx,
		Step:      step.NewRuntime(id.NewExecutionID(), store, logger),
		Publisher: pub,
	}, pub
}

func TestSlackValidationOrder(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{
			name: "missing variable name",
			data: map[string]any{"webhookUrl": "http://example.com", "content": "hi"},
			want: "Slack node: No variable name configured",
		},
		{
			name: "missing webhook url",
			data: map[string]any{"variableName": "msg", "content": "hi"},
			want: "Slack node: No webhook URL configured",
		},
		{
			name: "missing content",
			data: map[string]any{"variableName": "msg", "webhookUrl": "http://example.com"},
			want: "Slack node: No content configured",
		},
	}

	e := chat.NewSlack()
	t.Cleanup(func() { _ = e.Close() })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, pub := newRequest(t, graph.NodeSlack, tt.data, nil)
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
			wantStatuses := []stream.Status{stream.StatusLoading, stream.StatusError}
			if len(pub.statuses) != 2 || pub.statuses[0] != wantStatuses[0] || pub.statuses[1] != wantStatuses[1] {
				t.Errorf("statuses = %v, want %v", pub.statuses, wantStatuses)
			}
		})
	}
}

func TestSlackPostsRenderedMessage(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := chat.NewSlack()
	t.Cleanup(func() { _ = e.Close() })

	req, pub := newRequest(t, graph.NodeSlack, map[string]any{
		"variableName": "msg",
		"webhookUrl":   srv.URL,
		"content":      "Order {{order.id}} shipped",
		"username":     "{{bot}}",
	}, executor.Context{
		"order": map[string]any{"id": "A-42"},
		"bot":   "shipping-bot",
	})

	out, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if payload["text"] != "Order A-42 shipped" {
		t.Errorf("text = %q", payload["text"])
	}
	if payload["username"] != "shipping-bot" {
		t.Errorf("username = %q", payload["username"])
	}

	result, ok := out["msg"].(map[string]any)
	if !ok || result["slackMessageSent"] != true {
		t.Errorf("out[msg] = %v, want slackMessageSent", out["msg"])
	}

	want := []stream.Status{stream.StatusLoading, stream.StatusSuccess}
	if len(pub.statuses) != 2 || pub.statuses[1] != want[1] {
		t.Errorf("statuses = %v, want %v", pub.statuses, want)
	}
}

func TestSlackOmitsEmptyUsername(t *testing.T) {
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := chat.NewSlack()
	t.Cleanup(func() { _ = e.Close() })

	req, _ := newRequest(t, graph.NodeSlack, map[string]any{
		"variableName": "msg",
		"webhookUrl":   srv.URL,
		"content":      "hi",
	}, nil)

	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(string(raw), "username") {
		t.Errorf("payload should omit username: %s", raw)
	}
}

func TestSlackWebhookFailurePublishesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	e := chat.NewSlack()
	t.Cleanup(func() { _ = e.Close() })

	req, pub := newRequest(t, graph.NodeSlack, map[string]any{
		"variableName": "msg",
		"webhookUrl":   srv.URL,
		"content":      "hi",
	}, nil)

	_, err := e.Execute(context.Background(), req)
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if weave.IsNonRetriable(err) {
		t.Error("delivery failure should stay retriable")
	}
	if len(pub.statuses) != 2 || pub.statuses[1] != stream.StatusError {
		t.Errorf("statuses = %v, want trailing error", pub.statuses)
	}
}

func TestDiscordTruncatesContent(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	e := chat.NewDiscord()
	t.Cleanup(func() { _ = e.Close() })

	req, _ := newRequest(t, graph.NodeDiscord, map[string]any{
		"variableName": "msg",
		"webhookUrl":   srv.URL,
		"content":      strings.Repeat("x", 2500),
	}, nil)

	out, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	content, _ := payload["content"].(string)
	if len(content) != 2000 {
		t.Errorf("content length = %d, want 2000", len(content))
	}

	result, ok := out["msg"].(map[string]any)
	if !ok || result["discordMessageSent"] != true {
		t.Errorf("out[msg] = %v, want discordMessageSent", out["msg"])
	}
}

func TestReplayDoesNotResend(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := chat.NewSlack()
	t.Cleanup(func() { _ = e.Close() })

	req, _ := newRequest(t, graph.NodeSlack, map[string]any{
		"variableName": "msg",
		"webhookUrl":   srv.URL,
		"content":      "hi",
	}, nil)

	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if calls != 1 {
		t.Errorf("webhook called %d times, want 1", calls)
	}
}

func TestRegisterAllBindsBothTypes(t *testing.T) {
	reg := executor.NewRegistry()
	chat.RegisterAll(reg)

	for _, nt := range []graph.NodeType{graph.NodeSlack, graph.NodeDiscord} {
		if _, err := reg.Resolve(nt); err != nil {
			t.Errorf("Resolve(%s): %v", nt, err)
		}
	}
}
