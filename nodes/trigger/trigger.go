// Package trigger provides the executors for trigger node types.
//
// Trigger nodes sit at the root of a workflow graph. The payload they
// contribute is injected into the run context at ingress time, so by
// the time an executor runs there is nothing left to compute: each
// trigger executor records a durable step boundary and passes the
// context through unchanged.
package trigger

import (
	"context"

	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/stream"
)

// Passthrough is the executor shared by every trigger node type. The
// step name distinguishes the trigger family in the checkpoint log.
type Passthrough struct {
	op string
}

var _ executor.Executor = (*Passthrough)(nil)

// NewManual returns the executor for manual trigger nodes. It also
// serves initial nodes, which are manual triggers in all but name.
func NewManual() *Passthrough { return &Passthrough{op: "manual-trigger"} }

// NewGoogleForm returns the executor for Google Form trigger nodes.
func NewGoogleForm() *Passthrough { return &Passthrough{op: "google-form-trigger"} }

// NewStripe returns the executor for Stripe trigger nodes.
func NewStripe() *Passthrough { return &Passthrough{op: "stripe-trigger"} }

// Execute records the trigger step and returns the context unchanged.
func (p *Passthrough) Execute(ctx context.Context, req *executor.Request) (executor.Context, error) {
	req.PublishStatus(ctx, stream.StatusLoading)

	out, err := step.Run(ctx, req.Step, req.StepName(p.op), func(ctx context.Context) (executor.Context, error) {
		return req.Context, nil
	})
	if err != nil {
		req.PublishStatus(ctx, stream.StatusError)
		return nil, err
	}

	req.PublishStatus(ctx, stream.StatusSuccess)
	return out, nil
}

// RegisterAll binds every trigger node type into the registry.
func RegisterAll(reg *executor.Registry) {
	manual := NewManual()
	reg.Register(graph.NodeInitial, manual)
	reg.Register(graph.NodeManualTrigger, manual)
	reg.Register(graph.NodeGoogleFormTrigger, NewGoogleForm())
	reg.Register(graph.NodeStripeTrigger, NewStripe())
}
