// Package httpreq provides the executor for HTTP request nodes.
//
// The node calls a configured endpoint and stores the response in the
// run context under the node's variable name:
//
//	{ <variableName>: { "httpResponse": { "status", "statusText", "data" } } }
//
// JSON responses are decoded; everything else is stored as text.
package httpreq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/xraph/weave"
	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/stream"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Response is the recorded outcome of one HTTP request step.
type Response struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Data       any    `json:"data"`
}

// Executor runs HTTP request nodes.
type Executor struct {
	client *resty.Client
}

var _ executor.Executor = (*Executor)(nil)

// Option configures the executor.
type Option func(*Executor)

// WithClient replaces the default resty client.
func WithClient(c *resty.Client) Option {
	return func(e *Executor) { e.client = c }
}

// New creates an HTTP request executor.
func New(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = resty.New().SetTimeout(DefaultTimeout)
	}
	return e
}

// Close releases the underlying HTTP client.
func (e *Executor) Close() error { return e.client.Close() }

// Execute validates the node configuration, performs the request as a
// durable step, and merges the response into the run context.
func (e *Executor) Execute(ctx context.Context, req *executor.Request) (executor.Context, error) {
	req.PublishStatus(ctx, stream.StatusLoading)

	out, err := e.execute(ctx, req)
	if err != nil {
		req.PublishStatus(ctx, stream.StatusError)
		return nil, err
	}

	req.PublishStatus(ctx, stream.StatusSuccess)
	return out, nil
}

func (e *Executor) execute(ctx context.Context, req *executor.Request) (executor.Context, error) {
	endpoint := req.DataString("endpoint")
	if endpoint == "" {
		return nil, weave.NonRetriable(errors.New("HTTP Request node: No endpoint configured"))
	}
	variableName := req.DataString("variableName")
	if variableName == "" {
		return nil, weave.NonRetriable(errors.New("HTTP Request node: No variable name configured"))
	}
	method := req.DataString("method")
	if method == "" {
		return nil, weave.NonRetriable(errors.New("HTTP Request node: No method configured"))
	}

	resp, err := step.Run(ctx, req.Step, req.StepName("http-request"), func(ctx context.Context) (Response, error) {
		return e.do(ctx, method, endpoint, req.DataString("body"))
	})
	if err != nil {
		return nil, err
	}

	out := req.Context
	out[variableName] = map[string]any{"httpResponse": resp}
	return out, nil
}

func (e *Executor) do(ctx context.Context, method, endpoint, body string) (Response, error) {
	r := e.client.R().SetContext(ctx)
	if hasBody(method) {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(body)
	}

	res, err := r.Execute(strings.ToUpper(method), endpoint)
	if err != nil {
		return Response{}, err
	}
	if res.IsError() {
		return Response{}, fmt.Errorf("request failed: %s", res.Status())
	}

	raw := res.String()
	var data any = raw
	if strings.Contains(res.Header().Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			data = decoded
		}
	}

	return Response{
		Status:     res.StatusCode(),
		StatusText: http.StatusText(res.StatusCode()),
		Data:       data,
	}, nil
}

func hasBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
