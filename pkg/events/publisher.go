package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/ctdf"
	"github.com/travigo/stopdisplay/pkg/freshness"
)

// DepartureBoardEvent is the body of every published ctdf.Event.
type DepartureBoardEvent struct {
	StopReference string                 `json:"stop_reference"`
	State         freshness.State        `json:"state"`
	PreviousState freshness.State        `json:"previous_state"`
	Version       uint64                 `json:"version"`
	ErrorDetail   string                 `json:"error_detail,omitempty"`
	LastSuccessAt *time.Time             `json:"last_success_at,omitempty"`
	Departures    []ctdf.DepartureRecord `json:"departures,omitempty"`
}

func EventType(state freshness.State) ctdf.EventType {
	switch state {
	case freshness.Loading:
		return ctdf.EventTypeDepartureBoardLoading
	case freshness.Success:
		return ctdf.EventTypeDepartureBoardUpdated
	case freshness.Error:
		return ctdf.EventTypeDepartureBoardFailed
	default:
		return ctdf.EventTypeDepartureBoardRestored
	}
}

// NewEvent describes one store transition. Departures are only attached
// when the records changed.
func NewEvent(stopReference string, transition freshness.Transition, now time.Time) ctdf.Event {
	snapshot := transition.Snapshot

	body := DepartureBoardEvent{
		StopReference: stopReference,
		State:         snapshot.State,
		PreviousState: transition.From,
		Version:       snapshot.Version,
		ErrorDetail:   snapshot.ErrorDetail,
	}
	if snapshot.HasLastSuccess() {
		lastSuccess := snapshot.LastSuccessAt.UTC()
		body.LastSuccessAt = &lastSuccess
	}
	if snapshot.State == freshness.Success || snapshot.State == freshness.Idle {
		body.Departures = snapshot.Records
	}

	return ctdf.Event{
		Type:      EventType(snapshot.State),
		Timestamp: now.UTC(),
		Body:      body,
	}
}

type Publisher struct {
	StopReference string

	queue rmq.Queue
	now   func() time.Time
}

func NewPublisher(connection rmq.Connection, queueName string, stopReference string) (*Publisher, error) {
	queue, err := connection.OpenQueue(queueName)
	if err != nil {
		return nil, fmt.Errorf("opening events queue %s: %w", queueName, err)
	}

	return &Publisher{
		StopReference: stopReference,
		queue:         queue,
		now:           time.Now,
	}, nil
}

// Observe publishes the transition. Wrap with freshness.Async.
func (p *Publisher) Observe(transition freshness.Transition) {
	event := NewEvent(p.StopReference, transition, p.now())

	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode event")
		return
	}

	if err := p.queue.PublishBytes(eventBytes); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to publish event")
	}
}
