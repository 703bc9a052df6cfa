package stream_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/stream"
)

func newBroker(opts ...stream.BrokerOption) *stream.Broker {
	return stream.NewBroker(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func recvStatus(t *testing.T, sub *stream.Subscriber) stream.StatusEvent {
	t.Helper()
	select {
	case evt := <-sub.C():
		var status stream.StatusEvent
		if err := json.Unmarshal(evt.Data, &status); err != nil {
			t.Fatalf("unmarshal status event: %v", err)
		}
		return status
	default:
		t.Fatal("no event delivered")
		return stream.StatusEvent{}
	}
}

func TestPublishStatusReachesTopicSubscriber(t *testing.T) {
	b := newBroker()
	address := stream.Address("http-request-execution", stream.TopicStatus)
	sub := b.Subscribe("sub-1", address)

	err := stream.PublishStatus(context.Background(), b, graph.NodeHTTPRequest, "node-1", stream.StatusLoading)
	if err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	status := recvStatus(t, sub)
	if status.NodeID != "node-1" || status.Status != stream.StatusLoading {
		t.Errorf("status = %+v, want node-1/loading", status)
	}
}

func TestPublishReachesChannelWideSubscriber(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("sub-1", "openai-execution")

	err := stream.PublishStatus(context.Background(), b, graph.NodeOpenAI, "node-2", stream.StatusSuccess)
	if err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	status := recvStatus(t, sub)
	if status.NodeID != "node-2" || status.Status != stream.StatusSuccess {
		t.Errorf("status = %+v, want node-2/success", status)
	}
}

func TestPublishReachesFirehose(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("sub-1", stream.TopicFirehose)

	err := stream.PublishStatus(context.Background(), b, graph.NodeSlack, "node-3", stream.StatusError)
	if err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	evt := <-sub.C()
	if evt.Channel != "slack-execution" || evt.Topic != stream.TopicStatus {
		t.Errorf("event = %s/%s, want slack-execution/status", evt.Channel, evt.Topic)
	}
}

func TestSubscriberOnMultipleAddressesReceivesOnce(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("sub-1",
		stream.TopicFirehose,
		"discord-execution",
		stream.Address("discord-execution", stream.TopicStatus),
	)

	if err := stream.PublishStatus(context.Background(), b, graph.NodeDiscord, "node-4", stream.StatusLoading); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	<-sub.C()
	select {
	case evt := <-sub.C():
		t.Errorf("duplicate delivery: %+v", evt)
	default:
	}
}

func TestOtherChannelNotDelivered(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("sub-1", stream.Address("openai-execution", stream.TopicStatus))

	if err := stream.PublishStatus(context.Background(), b, graph.NodeHTTPRequest, "node-5", stream.StatusLoading); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	select {
	case evt := <-sub.C():
		t.Errorf("unexpected delivery: %+v", evt)
	default:
	}
}

func TestSubscriberFilter(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("sub-1", stream.TopicFirehose)
	sub.SetFilter(func(evt *stream.Event) bool {
		return evt.Channel == "gemini-execution"
	})

	ctx := context.Background()
	if err := stream.PublishStatus(ctx, b, graph.NodeSlack, "node-6", stream.StatusLoading); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}
	if err := stream.PublishStatus(ctx, b, graph.NodeGemini, "node-7", stream.StatusLoading); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	evt := <-sub.C()
	if evt.Channel != "gemini-execution" {
		t.Errorf("channel = %q, want gemini-execution", evt.Channel)
	}
	select {
	case extra := <-sub.C():
		t.Errorf("filtered event delivered: %+v", extra)
	default:
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	b := newBroker(stream.WithBufferSize(1))
	sub := b.Subscribe("sub-1", stream.TopicFirehose)

	ctx := context.Background()
	for range 3 {
		if err := stream.PublishStatus(ctx, b, graph.NodeOpenAI, "node-8", stream.StatusLoading); err != nil {
			t.Fatalf("PublishStatus: %v", err)
		}
	}

	if sub.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", sub.Dropped())
	}
}

func TestRemoveSubscriberClosesChannel(t *testing.T) {
	b := newBroker()
	sub := b.Subscribe("sub-1", stream.TopicFirehose)
	b.RemoveSubscriber("sub-1")

	if _, open := <-sub.C(); open {
		t.Error("channel still open after RemoveSubscriber")
	}
	if _, ok := b.GetSubscriber("sub-1"); ok {
		t.Error("subscriber still registered after RemoveSubscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newBroker()
	address := stream.Address("http-request-execution", stream.TopicStatus)
	sub := b.Subscribe("sub-1", address)
	b.Unsubscribe("sub-1", address)

	if err := stream.PublishStatus(context.Background(), b, graph.NodeHTTPRequest, "node-9", stream.StatusLoading); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	select {
	case evt := <-sub.C():
		t.Errorf("delivery after unsubscribe: %+v", evt)
	default:
	}
}

func TestBrokerStats(t *testing.T) {
	b := newBroker()
	b.Subscribe("sub-1", stream.TopicFirehose)
	b.Subscribe("sub-2", "openai-execution")

	if err := stream.PublishStatus(context.Background(), b, graph.NodeOpenAI, "node-10", stream.StatusSuccess); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TotalPublished != 2 {
		t.Errorf("TotalPublished = %d, want 2", stats.TotalPublished)
	}
}

func TestOnShutdownClosesAllSubscribers(t *testing.T) {
	b := newBroker()
	first := b.Subscribe("sub-1", stream.TopicFirehose)
	second := b.Subscribe("sub-2", stream.TopicFirehose)

	if err := b.OnShutdown(context.Background()); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}

	if _, open := <-first.C(); open {
		t.Error("sub-1 channel still open")
	}
	if _, open := <-second.C(); open {
		t.Error("sub-2 channel still open")
	}
}

func TestValidateAddress(t *testing.T) {
	valid := []string{
		stream.TopicFirehose,
		"http-request-execution",
		stream.Address("openai-execution", stream.TopicStatus),
	}
	for _, addr := range valid {
		if err := stream.ValidateAddress(addr); err != nil {
			t.Errorf("ValidateAddress(%q) = %v, want nil", addr, err)
		}
	}

	invalid := []string{"", "/status", "a/b/c"}
	for _, addr := range invalid {
		if err := stream.ValidateAddress(addr); err == nil {
			t.Errorf("ValidateAddress(%q) = nil, want error", addr)
		}
	}
}
