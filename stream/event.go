// Package stream provides a real-time event broker for node execution
// status updates. Executors publish per-node-type status events and the
// broker fans them out to connected subscribers via channel/topic
// pub/sub, which the HTTP layer exposes over SSE.
package stream

import (
	"context"
	"encoding/json"
	"time"
)

// Status is a node's visible execution phase.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// TopicStatus is the topic every node status update is published on.
const TopicStatus = "status"

// StatusEvent is the payload published when a node changes phase.
type StatusEvent struct {
	NodeID string `json:"nodeId"`
	Status Status `json:"status"`
}

// Event is the envelope sent to subscribers.
type Event struct {
	// Channel is the per-node-type channel name, e.g. "http-request-execution".
	Channel string `json:"channel"`

	// Topic is the message topic within the channel.
	Topic string `json:"topic"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// Publisher is the sending half of the broker, passed to node
// executors so they can report status without holding the full broker.
type Publisher interface {
	// Publish sends data on the given channel and topic. Delivery is
	// best effort; a slow or absent subscriber never blocks execution.
	Publish(ctx context.Context, channel, topic string, data any) error
}

// NopPublisher is a Publisher that discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
