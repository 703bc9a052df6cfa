// Package llm provides the executors for generative model nodes
// (OpenAI, Gemini, Anthropic).
//
// All three providers expose OpenAI-compatible chat completion APIs,
// so one executor serves them with per-provider base URLs. Prompts are
// rendered as Handlebars templates against the run context; the model
// response lands in the context as { <variableName>: { "text": ... } }.
//
// OpenAI and Gemini nodes resolve their API key from the credential
// vault by the node's credentialId. Anthropic nodes use a key supplied
// at construction, typically from the ANTHROPIC_API_KEY environment.
package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xraph/weave"
	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/stream"
	"github.com/xraph/weave/template"
)

// DefaultSystemPrompt is used when a node configures no system prompt.
const DefaultSystemPrompt = "You are a helpful assistant."

// OpenAI-compatible endpoints for the non-OpenAI providers.
const (
	GeminiBaseURL    = "https://generativelanguage.googleapis.com/v1beta/openai"
	AnthropicBaseURL = "https://api.anthropic.com/v1"
)

// Result is the recorded outcome of one model call step.
type Result struct {
	Text string `json:"text"`
}

// provider captures what differs between the model vendors.
type provider struct {
	label          string
	op             string
	baseURL        string
	usesCredential bool
}

// Executor runs one generative model node type.
type Executor struct {
	p       provider
	creds   *credential.Manager
	apiKey  string
	baseURL string
}

var _ executor.Executor = (*Executor)(nil)

// Option configures the executor.
type Option func(*Executor)

// WithBaseURL overrides the provider's API endpoint.
func WithBaseURL(url string) Option {
	return func(e *Executor) { e.baseURL = url }
}

func newExecutor(p provider, creds *credential.Manager, apiKey string, opts ...Option) *Executor {
	e := &Executor{p: p, creds: creds, apiKey: apiKey, baseURL: p.baseURL}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewOpenAI creates the executor for OpenAI nodes. API keys come from
// the credential vault.
func NewOpenAI(creds *credential.Manager, opts ...Option) *Executor {
	return newExecutor(provider{
		label:          "OpenAI",
		op:             "openai-generate-text",
		usesCredential: true,
	}, creds, "", opts...)
}

// NewGemini creates the executor for Gemini nodes. API keys come from
// the credential vault; calls go through Gemini's OpenAI-compatible
// endpoint.
func NewGemini(creds *credential.Manager, opts ...Option) *Executor {
	return newExecutor(provider{
		label:          "Gemini",
		op:             "gemini-generate-text",
		baseURL:        GeminiBaseURL,
		usesCredential: true,
	}, creds, "", opts...)
}

// NewAnthropic creates the executor for Anthropic nodes with a fixed
// API key.
func NewAnthropic(apiKey string, opts ...Option) *Executor {
	return newExecutor(provider{
		label:   "Anthropic",
		op:      "anthropic-generate-text",
		baseURL: AnthropicBaseURL,
	}, nil, apiKey, opts...)
}

// Execute renders the prompts, resolves the API key, and performs the
// model call as a durable inference step.
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

	systemPrompt := DefaultSystemPrompt
	if raw := req.DataString("systemPrompt"); raw != "" {
		rendered, err := template.Render(raw, req.Context)
		if err != nil {
			return nil, fmt.Errorf("render system prompt: %w", err)
		}
		systemPrompt = rendered
	}

	rawUserPrompt := req.DataString("userPrompt")
	if rawUserPrompt == "" {
		return nil, weave.NonRetriable(errors.New(e.p.label + " node: No user prompt configured"))
	}
	userPrompt, err := template.Render(rawUserPrompt, req.Context)
	if err != nil {
		return nil, fmt.Errorf("render user prompt: %w", err)
	}

	apiKey, err := e.resolveKey(ctx, req)
	if err != nil {
		return nil, err
	}

	model := req.DataString("model")
	result, err := step.Infer(ctx, req.Step, req.StepName(e.p.op), func(ctx context.Context) (Result, error) {
		return e.generate(ctx, apiKey, model, systemPrompt, userPrompt)
	})
	if err != nil {
		return nil, err
	}

	out := req.Context
	out[variableName] = map[string]any{"text": result.Text}
	return out, nil
}

// resolveKey returns the API key for the model call. Vault-backed
// providers look it up by credentialId as a durable step so the key
// read is stable across redeliveries.
func (e *Executor) resolveKey(ctx context.Context, req *executor.Request) (string, error) {
	if !e.p.usesCredential {
		if e.apiKey == "" {
			return "", weave.NonRetriable(errors.New(e.p.label + " node: No API key configured"))
		}
		return e.apiKey, nil
	}

	rawID := req.DataString("credentialId")
	if rawID == "" {
		return "", weave.NonRetriable(errors.New(e.p.label + " node: No credential ID configured"))
	}

	return step.Run(ctx, req.Step, req.StepName("get-credential"), func(ctx context.Context) (string, error) {
		credID, err := id.ParseCredentialID(rawID)
		if err != nil {
			return "", weave.NonRetriable(errors.New(e.p.label + " node: Credential not found"))
		}
		value, err := e.creds.Value(ctx, req.UserID, credID)
		if err != nil {
			if errors.Is(err, weave.ErrCredentialNotFound) {
				return "", weave.NonRetriable(errors.New(e.p.label + " node: Credential not found"))
			}
			return "", err
		}
		return value, nil
	})
}

func (e *Executor) generate(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (Result, error) {
	cfg := openai.DefaultConfig(apiKey)
	if e.baseURL != "" {
		cfg.BaseURL = e.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s chat completion: %w", e.p.label, err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("%s chat completion: empty response", e.p.label)
	}
	return Result{Text: resp.Choices[0].Message.Content}, nil
}

// RegisterAll binds the vault-backed model node types into the
// registry. Anthropic is registered separately because it needs an API
// key at construction.
func RegisterAll(reg *executor.Registry, creds *credential.Manager, anthropicKey string) {
	reg.Register(graph.NodeOpenAI, NewOpenAI(creds))
	reg.Register(graph.NodeGemini, NewGemini(creds))
	reg.Register(graph.NodeAnthropic, NewAnthropic(anthropicKey))
}
