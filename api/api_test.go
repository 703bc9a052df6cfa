package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/weave/api"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeIngress records trigger calls.
type fakeIngress struct {
	mu         sync.Mutex
	workflowID id.WorkflowID
	data       map[string]any
	err        error
}

func (f *fakeIngress) Trigger(_ context.Context, workflowID id.WorkflowID, initialData map[string]any) (id.EventID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return id.Nil, f.err
	}
	f.workflowID = workflowID
	f.data = initialData
	return id.NewEventID(), nil
}

func newAPI(t *testing.T, ing api.Triggerer) (*api.API, *memory.Store) {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	return api.New(ing, store, api.WithLogger(discardLogger())), store
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGoogleFormWebhook(t *testing.T) {
	ing := &fakeIngress{}
	a, _ := newAPI(t, ing)
	workflowID := id.NewWorkflowID()

	body := `{"formId":"f-1","formTitle":"Survey","responseId":"r-9","responses":{"q1":"yes"}}`
	rec := doJSON(t, a.Handler(), http.MethodPost, "/webhooks/google-form?workflowId="+workflowID.String(), body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp api.TriggerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || !strings.HasPrefix(resp.EventID, "evt_") {
		t.Errorf("response = %+v", resp)
	}

	if ing.workflowID != workflowID {
		t.Errorf("triggered workflow = %s, want %s", ing.workflowID, workflowID)
	}
	form, ok := ing.data["googleForm"].(map[string]any)
	if !ok {
		t.Fatalf("initial data = %v", ing.data)
	}
	if form["formId"] != "f-1" || form["formTitle"] != "Survey" {
		t.Errorf("form data = %v", form)
	}
	raw, ok := form["raw"].(map[string]any)
	if !ok || raw["responseId"] != "r-9" {
		t.Errorf("raw body = %v", form["raw"])
	}
}

func TestWebhookMissingWorkflowID(t *testing.T) {
	a, _ := newAPI(t, &fakeIngress{})
	rec := doJSON(t, a.Handler(), http.MethodPost, "/webhooks/google-form", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Missing required parameter: workflowId") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestWebhookRejectsBadWorkflowID(t *testing.T) {
	a, _ := newAPI(t, &fakeIngress{})
	rec := doJSON(t, a.Handler(), http.MethodPost, "/webhooks/stripe?workflowId=not-an-id", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStripeWebhook(t *testing.T) {
	ing := &fakeIngress{}
	a, _ := newAPI(t, ing)
	workflowID := id.NewWorkflowID()

	body := `{"id":"evt_stripe_1","type":"invoice.paid","data":{"object":{}}}`
	rec := doJSON(t, a.Handler(), http.MethodPost, "/webhooks/stripe?workflowId="+workflowID.String(), body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	event, ok := ing.data["stripe"].(map[string]any)
	if !ok || event["type"] != "invoice.paid" {
		t.Errorf("stripe payload = %v", ing.data)
	}
}

func TestExecuteWorkflow(t *testing.T) {
	ing := &fakeIngress{}
	a, _ := newAPI(t, ing)
	workflowID := id.NewWorkflowID()

	rec := doJSON(t, a.Handler(), http.MethodPost, "/v1/workflows/"+workflowID.String()+"/execute", `{"note":"kick"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	manual, ok := ing.data["manual"].(map[string]any)
	if !ok || manual["note"] != "kick" {
		t.Errorf("manual payload = %v", ing.data)
	}
}

func TestExecuteWorkflowEmptyBody(t *testing.T) {
	ing := &fakeIngress{}
	a, _ := newAPI(t, ing)
	workflowID := id.NewWorkflowID()

	rec := doJSON(t, a.Handler(), http.MethodPost, "/v1/workflows/"+workflowID.String()+"/execute", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if ing.data != nil {
		t.Errorf("initial data = %v, want nil", ing.data)
	}
}

func TestTriggerFailureReturns500(t *testing.T) {
	ing := &fakeIngress{err: errors.New("queue unavailable")}
	a, _ := newAPI(t, ing)
	workflowID := id.NewWorkflowID()

	rec := doJSON(t, a.Handler(), http.MethodPost, "/v1/workflows/"+workflowID.String()+"/execute", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListExecutionsFiltersByWorkflow(t *testing.T) {
	a, store := newAPI(t, &fakeIngress{})
	ctx := context.Background()

	target := id.NewWorkflowID()
	other := id.NewWorkflowID()
	for _, wfID := range []id.WorkflowID{target, target, other} {
		if err := store.CreateExecution(ctx, execution.New(wfID, id.NewEventID())); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
	}

	rec := doJSON(t, a.Handler(), http.MethodGet, "/v1/executions?workflowId="+target.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var execs []*execution.Execution
	if err := json.Unmarshal(rec.Body.Bytes(), &execs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("executions = %d, want 2", len(execs))
	}
	for _, e := range execs {
		if e.WorkflowID != target {
			t.Errorf("execution %s belongs to %s", e.ID, e.WorkflowID)
		}
	}
}

func TestGetExecution(t *testing.T) {
	a, store := newAPI(t, &fakeIngress{})
	ctx := context.Background()

	exec := execution.New(id.NewWorkflowID(), id.NewEventID())
	exec.Complete(map[string]any{"result": "ok"})
	if err := store.CreateExecution(ctx, exec); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	rec := doJSON(t, a.Handler(), http.MethodGet, "/v1/executions/"+exec.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var got execution.Execution
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != exec.ID || got.Status != execution.StatusSuccess {
		t.Errorf("got = %+v", got)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	a, _ := newAPI(t, &fakeIngress{})
	rec := doJSON(t, a.Handler(), http.MethodGet, "/v1/executions/"+id.NewExecutionID().String(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetExecutionBadID(t *testing.T) {
	a, _ := newAPI(t, &fakeIngress{})
	rec := doJSON(t, a.Handler(), http.MethodGet, "/v1/executions/garbage", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
