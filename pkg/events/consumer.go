package events

import (
	"encoding/json"

	"github.com/adjust/rmq/v5"
	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/ctdf"
)

// WatchConsumer logs every event on the queue.
type WatchConsumer struct {
	Verbose bool

	handle func(ctdf.Event)
}

func NewWatchConsumer(verbose bool) *WatchConsumer {
	return &WatchConsumer{Verbose: verbose}
}

func (consumer *WatchConsumer) Consume(batch rmq.Deliveries) {
	for _, payload := range batch.Payloads() {
		var event ctdf.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.Error().Err(err).Msg("Failed to decode event")
			continue
		}

		consumer.log(event)
		if consumer.handle != nil {
			consumer.handle(event)
		}
	}

	if ackErrors := batch.Ack(); len(ackErrors) > 0 {
		for _, err := range ackErrors {
			log.Error().Err(err).Msg("Failed to ack event")
		}
	}
}

func (consumer *WatchConsumer) log(event ctdf.Event) {
	entry := log.Info().
		Str("type", string(event.Type)).
		Time("timestamp", event.Timestamp)

	if body, ok := event.Body.(map[string]interface{}); ok {
		if state, ok := body["state"].(string); ok {
			entry = entry.Str("state", state)
		}
		if detail, ok := body["error_detail"].(string); ok {
			entry = entry.Str("error", detail)
		}
		if departures, ok := body["departures"].([]interface{}); ok {
			entry = entry.Int("departures", len(departures))
		}
	}

	entry.Msg("Departure board event")

	if consumer.Verbose {
		pretty.Println(event.Body)
	}
}
