package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/weave/ext"
	"github.com/xraph/weave/graph"
)

// Compile-time interface checks.
var (
	_ Publisher     = (*Broker)(nil)
	_ ext.Extension = (*Broker)(nil)
	_ ext.Shutdown  = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// Broker is the real-time status broker. Executors publish node status
// updates through it and it fans them out to subscribers via
// channel/topic pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize int
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates a new status broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:     NewTopicRegistry(),
		logger:     logger,
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use (e.g. SSE handler).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given addresses.
func (b *Broker) Subscribe(subscriberID string, addresses ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize)
	b.subscribers.Store(subscriberID, sub)
	for _, address := range addresses {
		b.topics.Subscribe(address, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional addresses.
func (b *Broker) SubscribeTo(subscriberID string, addresses ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, address := range addresses {
		b.topics.Subscribe(address, sub)
	}
}

// Unsubscribe removes a subscriber from specific addresses.
func (b *Broker) Unsubscribe(subscriberID string, addresses ...string) {
	for _, address := range addresses {
		b.topics.Unsubscribe(address, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all addresses and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Publish implements Publisher. The payload is serialized once and
// broadcast to the exact address, the channel-wide address, and the
// firehose.
func (b *Broker) Publish(_ context.Context, channel, topic string, data any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("stream: marshal event data: %w", err)
	}
	evt := &Event{
		Channel:   channel,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Data:      encoded,
	}
	delivered := b.topics.Broadcast(resolveAddresses(evt), evt)
	b.totalPublished.Add(int64(delivered))
	return nil
}

// PublishStatus publishes a node status update on the node type's
// execution channel. Failures are reported to the caller but are safe
// to ignore; status updates are advisory.
func PublishStatus(ctx context.Context, pub Publisher, nodeType graph.NodeType, nodeID string, status Status) error {
	return pub.Publish(ctx, ExecutionChannel(nodeType), TopicStatus, StatusEvent{
		NodeID: nodeID,
		Status: status,
	})
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	dropped := int64(0)
	b.subscribers.Range(func(_, value any) bool {
		count++
		dropped += value.(*Subscriber).Dropped() //nolint:errcheck // sync.Map always stores *Subscriber
		return true
	})
	return BrokerStats{
		AddressCount:    b.topics.AddressCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    dropped,
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	AddressCount    int   `json:"address_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// OnShutdown implements ext.Shutdown. It closes every subscriber.
func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		value.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
