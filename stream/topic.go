package stream

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xraph/weave/graph"
)

// Subscription addresses follow a pattern:
//
//	<channel>/<topic>  — one topic on one channel, e.g. "http-request-execution/status"
//	<channel>          — every topic on a channel
//	firehose           — everything
const TopicFirehose = "firehose"

// Address builds the subscription address for a channel/topic pair.
func Address(channel, topic string) string { return channel + "/" + topic }

// ExecutionChannel returns the status channel name for a node type.
// Unknown node types fall back to a lowercased slug of the type name.
func ExecutionChannel(t graph.NodeType) string {
	switch t {
	case graph.NodeManualTrigger:
		return "manual-trigger-execution"
	case graph.NodeGoogleFormTrigger:
		return "google-form-trigger-execution"
	case graph.NodeStripeTrigger:
		return "stripe-trigger-execution"
	case graph.NodeHTTPRequest:
		return "http-request-execution"
	case graph.NodeOpenAI:
		return "openai-execution"
	case graph.NodeAnthropic:
		return "anthropic-execution"
	case graph.NodeGemini:
		return "gemini-execution"
	case graph.NodeSlack:
		return "slack-execution"
	case graph.NodeDiscord:
		return "discord-execution"
	default:
		slug := strings.ToLower(strings.ReplaceAll(string(t), "_", "-"))
		return slug + "-execution"
	}
}

// ParseAddress splits an address into channel and topic. The topic is
// empty for channel-wide addresses.
func ParseAddress(address string) (channel, topic string) {
	idx := strings.IndexByte(address, '/')
	if idx < 0 {
		return address, ""
	}
	return address[:idx], address[idx+1:]
}

// ValidateAddress checks whether a subscription address is well formed.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("stream: empty address")
	}
	if address == TopicFirehose {
		return nil
	}
	channel, topic := ParseAddress(address)
	if channel == "" {
		return fmt.Errorf("stream: invalid address %q", address)
	}
	if strings.Contains(topic, "/") {
		return fmt.Errorf("stream: invalid address %q", address)
	}
	return nil
}

// TopicRegistry manages subscriber sets per address.
// It is safe for concurrent use.
type TopicRegistry struct {
	mu        sync.RWMutex
	addresses map[string]map[string]*Subscriber // address → subscriberID → subscriber
}

// NewTopicRegistry creates an empty topic registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		addresses: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe adds a subscriber to an address. Creates the address set if
// it doesn't exist.
func (tr *TopicRegistry) Subscribe(address string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.addresses[address]
	if !ok {
		subs = make(map[string]*Subscriber)
		tr.addresses[address] = subs
	}
	subs[sub.ID()] = sub
	sub.addAddress(address)
}

// Unsubscribe removes a subscriber from an address. Cleans up empty sets.
func (tr *TopicRegistry) Unsubscribe(address, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs, ok := tr.addresses[address]
	if !ok {
		return
	}
	if sub, exists := subs[subscriberID]; exists {
		sub.removeAddress(address)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(tr.addresses, address)
	}
}

// UnsubscribeAll removes a subscriber from every address.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for address, subs := range tr.addresses {
		if sub, ok := subs[subscriberID]; ok {
			sub.removeAddress(address)
			delete(subs, subscriberID)
		}
		if len(subs) == 0 {
			delete(tr.addresses, address)
		}
	}
}

// Broadcast sends an event to all subscribers on the listed addresses,
// deduplicating subscribers that match more than one. Returns the
// number of deliveries.
func (tr *TopicRegistry) Broadcast(addresses []string, evt *Event) int {
	tr.mu.RLock()
	seen := make(map[string]*Subscriber)
	for _, address := range addresses {
		for subID, sub := range tr.addresses[address] {
			seen[subID] = sub
		}
	}
	tr.mu.RUnlock()

	delivered := 0
	for _, sub := range seen {
		if sub.send(evt) {
			delivered++
		}
	}
	return delivered
}

// AddressCount returns the number of active addresses.
func (tr *TopicRegistry) AddressCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.addresses)
}

// SubscriberCount returns the number of subscribers on an address.
func (tr *TopicRegistry) SubscriberCount(address string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.addresses[address])
}

// resolveAddresses returns every address an event reaches: the exact
// channel/topic pair, the channel-wide address, and the firehose.
func resolveAddresses(evt *Event) []string {
	return []string{
		Address(evt.Channel, evt.Topic),
		evt.Channel,
		TopicFirehose,
	}
}
