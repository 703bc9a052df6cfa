package httpreq_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/xraph/weave"
	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/nodes/httpreq"
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

func newRequest(t *testing.T, data map[string]any) (*executor.Request, *recordingPublisher) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := &recordingPublisher{}
	return &executor.Request{
		NodeID:    "node-1",
		Type:      graph.NodeHTTPRequest,
		Data:      data,
		Context:   executor.Context{},
		Step:      step.NewRuntime(id.NewExecutionID(), store, logger),
		Publisher: pub,
	}, pub
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{
			name: "missing endpoint",
			data: map[string]any{"variableName": "res", "method": "GET"},
			want: "HTTP Request node: No endpoint configured",
		},
		{
			name: "missing variable name",
			data: map[string]any{"endpoint": "http://example.com", "method": "GET"},
			want: "HTTP Request node: No variable name configured",
		},
		{
			name: "missing method",
			data: map[string]any{"endpoint": "http://example.com", "variableName": "res"},
			want: "HTTP Request node: No method configured",
		},
	}

	e := httpreq.New()
	t.Cleanup(func() { _ = e.Close() })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, pub := newRequest(t, tt.data)
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
			// loading is published before validation, error before failing.
			want := []stream.Status{stream.StatusLoading, stream.StatusError}
			if len(pub.statuses) != 2 || pub.statuses[0] != want[0] || pub.statuses[1] != want[1] {
				t.Errorf("statuses = %v, want %v", pub.statuses, want)
			}
		})
	}
}

func TestGetDecodesJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"greeting":"hello"}`))
	}))
	t.Cleanup(srv.Close)

	e := httpreq.New()
	t.Cleanup(func() { _ = e.Close() })

	req, _ := newRequest(t, map[string]any{
		"endpoint":     srv.URL,
		"variableName": "res",
		"method":       "GET",
	})

	out, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	payload, ok := out["res"].(map[string]any)
	if !ok {
		t.Fatalf("out[res] = %T, want map", out["res"])
	}
	resp, ok := payload["httpResponse"].(httpreq.Response)
	if !ok {
		t.Fatalf("httpResponse = %T, want httpreq.Response", payload["httpResponse"])
	}
	if resp.Status != http.StatusOK || resp.StatusText != "OK" {
		t.Errorf("status = %d %q", resp.Status, resp.StatusText)
	}
	body, ok := resp.Data.(map[string]any)
	if !ok || body["greeting"] != "hello" {
		t.Errorf("data = %v, want decoded JSON object", resp.Data)
	}
}

func TestNonJSONResponseKeptAsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain text"))
	}))
	t.Cleanup(srv.Close)

	e := httpreq.New()
	t.Cleanup(func() { _ = e.Close() })

	req, _ := newRequest(t, map[string]any{
		"endpoint":     srv.URL,
		"variableName": "res",
		"method":       "GET",
	})

	out, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	resp := out["res"].(map[string]any)["httpResponse"].(httpreq.Response)
	if resp.Data != "plain text" {
		t.Errorf("data = %v, want raw text", resp.Data)
	}
}

func TestPostSendsBodyWithJSONContentType(t *testing.T) {
	var gotBody string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := httpreq.New()
	t.Cleanup(func() { _ = e.Close() })

	req, _ := newRequest(t, map[string]any{
		"endpoint":     srv.URL,
		"variableName": "res",
		"method":       "POST",
		"body":         `{"k":"v"}`,
	})

	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotBody != `{"k":"v"}` {
		t.Errorf("body = %q", gotBody)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
}

func TestGetSendsNoBody(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	e := httpreq.New()
	t.Cleanup(func() { _ = e.Close() })

	req, _ := newRequest(t, map[string]any{
		"endpoint":     srv.URL,
		"variableName": "res",
		"method":       "GET",
		"body":         "ignored",
	})

	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotContentType == "application/json" {
		t.Error("GET should not carry a JSON body")
	}
}

func TestErrorStatusFailsStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	e := httpreq.New()
	t.Cleanup(func() { _ = e.Close() })

	req, _ := newRequest(t, map[string]any{
		"endpoint":     srv.URL,
		"variableName": "res",
		"method":       "GET",
	})

	if _, err := e.Execute(context.Background(), req); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestReplayDoesNotRepeatRequest(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"n":1}`))
	}))
	t.Cleanup(srv.Close)

	e := httpreq.New()
	t.Cleanup(func() { _ = e.Close() })

	req, _ := newRequest(t, map[string]any{
		"endpoint":     srv.URL,
		"variableName": "res",
		"method":       "GET",
	})

	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := e.Execute(context.Background(), req); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}
}
