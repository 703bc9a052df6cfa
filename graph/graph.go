// Package graph defines the in-memory workflow graph model: typed
// nodes, directed connections, and the workflow that owns them.
// The model is pure data; ordering lives in Sort.
package graph

import (
	"context"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
)

// NodeType identifies the executor family a node dispatches to.
type NodeType string

// Node type constants. INITIAL is the placeholder node a freshly
// created workflow starts with; it executes as a manual trigger.
const (
	NodeInitial           NodeType = "INITIAL"
	NodeManualTrigger     NodeType = "MANUAL_TRIGGER"
	NodeGoogleFormTrigger NodeType = "GOOGLE_FORM_TRIGGER"
	NodeStripeTrigger     NodeType = "STRIPE_TRIGGER"
	NodeHTTPRequest       NodeType = "HTTP_REQUEST"
	NodeOpenAI            NodeType = "OPENAI"
	NodeAnthropic         NodeType = "ANTHROPIC"
	NodeGemini            NodeType = "GEMINI"
	NodeSlack             NodeType = "SLACK"
	NodeDiscord           NodeType = "DISCORD"
)

// Node is a single configured step in a workflow graph. The ID is
// caller-supplied (the editor assigns it) and unique within the
// workflow. Data is the opaque configuration payload validated by the
// node type's executor at run time.
type Node struct {
	ID   string         `json:"id"`
	Type NodeType       `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Connection is a directed dependency edge between two nodes of the
// same workflow: FromNodeID executes before ToNodeID.
type Connection struct {
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
}

// Workflow owns a set of nodes and the connections between them.
// UserID is the owning user, used by executors for scoped credential
// lookup. The engine runs whatever graph it is given; the editor, not
// the engine, enforces the one-trigger policy.
type Workflow struct {
	weave.Entity

	ID          id.WorkflowID `json:"id"`
	UserID      string        `json:"user_id"`
	Name        string        `json:"name"`
	Nodes       []Node        `json:"nodes"`
	Connections []Connection  `json:"connections"`
}

// ListOpts controls pagination for workflow list queries.
type ListOpts struct {
	// Limit is the maximum number of workflows to return. Zero means no limit.
	Limit int
	// Offset is the number of workflows to skip.
	Offset int
	// UserID filters by owning user. Empty means all users.
	UserID string
}

// Store defines the persistence contract for workflow graphs.
type Store interface {
	// CreateWorkflow persists a new workflow with its nodes and connections.
	CreateWorkflow(ctx context.Context, wf *Workflow) error

	// GetWorkflow retrieves a workflow by ID, including nodes and connections.
	GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*Workflow, error)

	// UpdateWorkflow replaces a workflow's nodes, connections, and metadata.
	UpdateWorkflow(ctx context.Context, wf *Workflow) error

	// DeleteWorkflow removes a workflow and everything it owns.
	DeleteWorkflow(ctx context.Context, workflowID id.WorkflowID) error

	// ListWorkflows returns workflows matching the given options.
	ListWorkflows(ctx context.Context, opts ListOpts) ([]*Workflow, error)
}
