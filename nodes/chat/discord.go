package chat

import "github.com/xraph/weave/graph"

const discordType = graph.NodeDiscord

// discordContentLimit is Discord's maximum message length.
const discordContentLimit = 2000

// discordMessage is the webhook payload Discord accepts.
type discordMessage struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// NewDiscord creates the executor for Discord nodes. It posts rendered
// messages to a Discord webhook, truncating content to the 2000
// character limit, and records the result as
// { <variableName>: { "discordMessageSent": true } }.
func NewDiscord(opts ...Option) *Executor {
	return newExecutor(provider{
		label:     "Discord",
		op:        "discord-webhook",
		resultKey: "discordMessageSent",
		payload: func(content, username string) any {
			return discordMessage{Content: truncateRunes(content, discordContentLimit), Username: username}
		},
	}, opts...)
}
