// Package api exposes the HTTP surface: trigger webhooks, manual
// execution, the execution read model, and the SSE status stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xraph/weave"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/stream"
	"github.com/xraph/weave/trigger"
)

// Triggerer starts a workflow run for an inbound event.
// trigger.Ingress satisfies it.
type Triggerer interface {
	Trigger(ctx context.Context, workflowID id.WorkflowID, initialData map[string]any) (id.EventID, error)
}

// API wires the HTTP handlers together.
type API struct {
	ingress    Triggerer
	executions execution.Store
	broker     *stream.Broker
	logger     *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the API logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithBroker enables the SSE status stream endpoint.
func WithBroker(b *stream.Broker) Option {
	return func(a *API) { a.broker = b }
}

// New creates an API over a trigger ingress and the execution read model.
func New(ingress Triggerer, executions execution.Store, opts ...Option) *API {
	a := &API{
		ingress:    ingress,
		executions: executions,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/google-form", a.googleFormWebhook)
	mux.HandleFunc("POST /webhooks/stripe", a.stripeWebhook)
	mux.HandleFunc("POST /v1/workflows/{workflowId}/execute", a.executeWorkflow)
	mux.HandleFunc("GET /v1/executions", a.listExecutions)
	mux.HandleFunc("GET /v1/executions/{executionId}", a.getExecution)
	if a.broker != nil {
		mux.HandleFunc("GET /v1/status/stream", a.statusStream)
	}
	return mux
}

// TriggerResponse acknowledges an accepted trigger.
type TriggerResponse struct {
	Success    bool   `json:"success"`
	EventID    string `json:"eventId"`
	WorkflowID string `json:"workflowId"`
}

// googleFormWebhook accepts Google Forms submissions. The form fields
// are lifted into a stable shape and the full body kept under "raw".
func (a *API) googleFormWebhook(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := a.workflowFromQuery(w, r)
	if !ok {
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	form := map[string]any{
		"formId":          body["formId"],
		"formTitle":       body["formTitle"],
		"responseId":      body["responseId"],
		"timestamp":       body["timestamp"],
		"respondentEmail": body["respondentEmail"],
		"responses":       body["responses"],
		"raw":             body,
	}
	a.fire(w, r, workflowID, trigger.Namespace("googleForm", form))
}

// stripeWebhook accepts Stripe event notifications.
func (a *API) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := a.workflowFromQuery(w, r)
	if !ok {
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	event := map[string]any{
		"id":   body["id"],
		"type": body["type"],
		"raw":  body,
	}
	a.fire(w, r, workflowID, trigger.Namespace("stripe", event))
}

// executeWorkflow triggers a run manually. An optional JSON body is
// passed to the run under the "manual" namespace.
func (a *API) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, err := id.ParseWorkflowID(r.PathValue("workflowId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow ID: "+err.Error())
		return
	}

	var initialData map[string]any
	var body map[string]any
	if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr == nil && len(body) > 0 {
		initialData = trigger.Namespace("manual", body)
	}
	a.fire(w, r, workflowID, initialData)
}

func (a *API) listExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := execution.ListOpts{
		Status: execution.Status(q.Get("status")),
		Limit:  atoiDefault(q.Get("limit"), 50),
		Offset: atoiDefault(q.Get("offset"), 0),
	}
	if raw := q.Get("workflowId"); raw != "" {
		workflowID, err := id.ParseWorkflowID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid workflow ID: "+err.Error())
			return
		}
		opts.WorkflowID = workflowID
	}

	execs, err := a.executions.ListExecutions(r.Context(), opts)
	if err != nil {
		a.logger.Error("list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (a *API) getExecution(w http.ResponseWriter, r *http.Request) {
	executionID, err := id.ParseExecutionID(r.PathValue("executionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid execution ID: "+err.Error())
		return
	}

	exec, err := a.executions.GetExecution(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, weave.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		a.logger.Error("get execution failed",
			slog.String("execution_id", executionID.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load execution")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// workflowFromQuery extracts and validates the workflowId query
// parameter shared by the webhook endpoints.
func (a *API) workflowFromQuery(w http.ResponseWriter, r *http.Request) (id.WorkflowID, bool) {
	raw := r.URL.Query().Get("workflowId")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameter: workflowId")
		return id.Nil, false
	}
	workflowID, err := id.ParseWorkflowID(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow ID: "+err.Error())
		return id.Nil, false
	}
	return workflowID, true
}

// fire triggers the run and writes the accepted response.
func (a *API) fire(w http.ResponseWriter, r *http.Request, workflowID id.WorkflowID, initialData map[string]any) {
	eventID, err := a.ingress.Trigger(r.Context(), workflowID, initialData)
	if err != nil {
		a.logger.Error("trigger failed",
			slog.String("workflow_id", workflowID.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to trigger workflow")
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerResponse{
		Success:    true,
		EventID:    eventID.String(),
		WorkflowID: workflowID.String(),
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
