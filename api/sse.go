package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/weave/id"
	"github.com/xraph/weave/stream"
)

// keepAliveInterval is how often an SSE comment is written to detect
// dead connections through idle proxies.
const keepAliveInterval = 15 * time.Second

// statusStream bridges the broker to Server-Sent Events. Clients pick
// subscription addresses with repeated "address" query parameters
// ("<channel>/<topic>", "<channel>", or "firehose"); the default is the
// firehose.
func (a *API) statusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	addresses := r.URL.Query()["address"]
	if len(addresses) == 0 {
		addresses = []string{stream.TopicFirehose}
	}
	for _, address := range addresses {
		if err := stream.ValidateAddress(address); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	subscriberID := id.NewSubscriberID().String()
	sub := a.broker.Subscribe(subscriberID, addresses...)
	defer a.broker.RemoveSubscriber(subscriberID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	a.logger.Debug("sse subscriber connected",
		slog.String("subscriber_id", subscriberID),
		slog.Any("addresses", addresses),
	)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub.C():
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Topic, payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
