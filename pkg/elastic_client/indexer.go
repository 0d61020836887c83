package elastic_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/ctdf"
	"github.com/travigo/stopdisplay/pkg/freshness"
)

const flushInterval = 15 * time.Second

// TransitionDocument is the indexed form of one store transition.
type TransitionDocument struct {
	Timestamp     time.Time  `json:"@timestamp"`
	StopReference string     `json:"stop_reference"`
	State         string     `json:"state"`
	PreviousState string     `json:"previous_state"`
	Version       uint64     `json:"version"`
	Departures    int        `json:"departures"`
	Stale         bool       `json:"stale"`
	ErrorDetail   string     `json:"error_detail,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	AgeSeconds    float64    `json:"age_seconds"`
	NextLine      string     `json:"next_line,omitempty"`
	NextWait      *int       `json:"next_wait_minutes,omitempty"`
}

func NewTransitionDocument(stopReference string, transition freshness.Transition, now time.Time) TransitionDocument {
	snapshot := transition.Snapshot

	document := TransitionDocument{
		Timestamp:     now.UTC(),
		StopReference: stopReference,
		State:         snapshot.State.String(),
		PreviousState: transition.From.String(),
		Version:       snapshot.Version,
		Departures:    len(snapshot.Records),
		Stale:         snapshot.Stale(),
		ErrorDetail:   snapshot.ErrorDetail,
		AgeSeconds:    snapshot.Age(now).Seconds(),
	}
	if snapshot.HasLastSuccess() {
		lastSuccess := snapshot.LastSuccessAt.UTC()
		document.LastSuccessAt = &lastSuccess
	}
	if len(snapshot.Records) > 0 {
		next := snapshot.Records[0]
		wait := ctdf.MinutesUntil(next.ExpectedTime, now)
		document.NextLine = next.LineID
		document.NextWait = &wait
	}

	return document
}

// IndexName gives one index per ISO week, e.g. stopdisplay-transitions-2026-10.
func IndexName(prefix string, t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%s-%d-%02d", prefix, year, week)
}

// Indexer bulk-indexes every transition.
type Indexer struct {
	StopReference string
	IndexPrefix   string

	bulkIndexer esutil.BulkIndexer
	now         func() time.Time
}

func NewIndexer(es *elasticsearch.Client, indexPrefix string, stopReference string) (*Indexer, error) {
	bulkIndexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        es,
		FlushInterval: flushInterval,
		OnError: func(ctx context.Context, err error) {
			log.Error().Err(err).Msg("Bulk indexer error")
		},
	})
	if err != nil {
		return nil, err
	}

	return &Indexer{
		StopReference: stopReference,
		IndexPrefix:   indexPrefix,
		bulkIndexer:   bulkIndexer,
		now:           time.Now,
	}, nil
}

// Observe queues the transition. Wrap with freshness.Async.
func (i *Indexer) Observe(transition freshness.Transition) {
	now := i.now()
	document, err := json.Marshal(NewTransitionDocument(i.StopReference, transition, now))
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode transition document")
		return
	}

	indexName := IndexName(i.IndexPrefix, now)

	err = i.bulkIndexer.Add(
		context.Background(),
		esutil.BulkIndexerItem{
			Index:  indexName,
			Action: "index",
			Body:   bytes.NewReader(document),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					log.Error().Err(err).Str("indexName", indexName).Msg("Failed to index document")
				} else {
					log.Error().Str("type", res.Error.Type).Str("reason", res.Error.Reason).Msg("Failed to index document")
				}
			},
		},
	)
	if err != nil {
		log.Error().Err(err).Str("indexName", indexName).Msg("Failed to queue document")
	}
}

// Close flushes pending documents.
func (i *Indexer) Close(ctx context.Context) error {
	return i.bulkIndexer.Close(ctx)
}

func (i *Indexer) Stats() esutil.BulkIndexerStats {
	return i.bulkIndexer.Stats()
}
