package chat

import "github.com/xraph/weave/graph"

const slackType = graph.NodeSlack

// slackMessage is the incoming-webhook payload Slack accepts.
type slackMessage struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
}

// NewSlack creates the executor for Slack nodes. It posts rendered
// messages to a Slack incoming webhook and records the result as
// { <variableName>: { "slackMessageSent": true } }.
func NewSlack(opts ...Option) *Executor {
	return newExecutor(provider{
		label:     "Slack",
		op:        "slack-webhook",
		resultKey: "slackMessageSent",
		payload: func(content, username string) any {
			return slackMessage{Text: content, Username: username}
		},
	}, opts...)
}
