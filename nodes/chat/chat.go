// Package chat provides the executors for chat webhook nodes (Slack
// and Discord).
//
// Both nodes render their message content as a Handlebars template
// against the accumulated run context, post it to an incoming webhook,
// and mark the delivery in the context under the node's variable name.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/xraph/weave"
	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/stream"
	"github.com/xraph/weave/template"
)

// DefaultTimeout bounds a single webhook delivery.
const DefaultTimeout = 15 * time.Second

// provider captures what differs between the chat services.
type provider struct {
	label     string
	op        string
	resultKey string
	payload   func(content, username string) any
}

// Executor runs one chat webhook node type.
type Executor struct {
	p      provider
	client *resty.Client
}

var _ executor.Executor = (*Executor)(nil)

// Option configures the executor.
type Option func(*Executor)

// WithClient replaces the default resty client.
func WithClient(c *resty.Client) Option {
	return func(e *Executor) { e.client = c }
}

func newExecutor(p provider, opts ...Option) *Executor {
	e := &Executor{p: p}
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

// Execute renders the message, posts it to the webhook as a durable
// step, and records the delivery in the run context.
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
	variableName := req.DataString("variableName")
	if variableName == "" {
		return nil, weave.NonRetriable(errors.New(e.p.label + " node: No variable name configured"))
	}
	webhookURL := req.DataString("webhookUrl")
	if webhookURL == "" {
		return nil, weave.NonRetriable(errors.New(e.p.label + " node: No webhook URL configured"))
	}
	rawContent := req.DataString("content")
	if rawContent == "" {
		return nil, weave.NonRetriable(errors.New(e.p.label + " node: No content configured"))
	}

	content, err := template.RenderUnescaped(rawContent, req.Context)
	if err != nil {
		return nil, fmt.Errorf("render content: %w", err)
	}
	username := ""
	if raw := req.DataString("username"); raw != "" {
		username, err = template.RenderUnescaped(raw, req.Context)
		if err != nil {
			return nil, fmt.Errorf("render username: %w", err)
		}
	}

	if err := req.Step.Do(ctx, req.StepName(e.p.op), func(ctx context.Context) error {
		return e.post(ctx, webhookURL, content, username)
	}); err != nil {
		return nil, err
	}

	out := req.Context
	out[variableName] = map[string]any{e.p.resultKey: true}
	return out, nil
}

func (e *Executor) post(ctx context.Context, url, content, username string) error {
	res, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(e.p.payload(content, username)).
		Post(url)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("webhook delivery failed: %s", res.Status())
	}
	return nil
}

// truncateRunes caps a message at n runes without splitting one.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// RegisterAll binds both chat node types into the registry.
func RegisterAll(reg *executor.Registry, opts ...Option) {
	reg.Register(slackType, NewSlack(opts...))
	reg.Register(discordType, NewDiscord(opts...))
}
