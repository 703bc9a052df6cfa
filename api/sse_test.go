package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/weave/api"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/store/memory"
	"github.com/xraph/weave/stream"
)

func TestStatusStreamDeliversEvents(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	broker := stream.NewBroker(discardLogger())
	a := api.New(&fakeIngress{}, store,
		api.WithLogger(discardLogger()),
		api.WithBroker(broker),
	)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	address := stream.Address("http-request-execution", stream.TopicStatus)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/status/stream?address="+address, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Wait for the subscription to land before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for broker.Topics().SubscriberCount(address) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := stream.PublishStatus(context.Background(), broker, graph.NodeHTTPRequest, "node-1", stream.StatusLoading); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	var dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			dataLine = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if dataLine == "" {
		t.Fatalf("no data line received: %v", scanner.Err())
	}

	var evt stream.Event
	if err := json.Unmarshal([]byte(dataLine), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Channel != "http-request-execution" || evt.Topic != stream.TopicStatus {
		t.Errorf("event = %+v", evt)
	}
	var status stream.StatusEvent
	if err := json.Unmarshal(evt.Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.NodeID != "node-1" || status.Status != stream.StatusLoading {
		t.Errorf("status event = %+v", status)
	}
}

func TestStatusStreamRejectsBadAddress(t *testing.T) {
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	broker := stream.NewBroker(discardLogger())
	a := api.New(&fakeIngress{}, store,
		api.WithLogger(discardLogger()),
		api.WithBroker(broker),
	)

	rec := doJSON(t, a.Handler(), http.MethodGet, "/v1/status/stream?address=bad/extra/segments", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatusStreamDisabledWithoutBroker(t *testing.T) {
	a, _ := newAPI(t, &fakeIngress{})
	rec := doJSON(t, a.Handler(), http.MethodGet, "/v1/status/stream", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
