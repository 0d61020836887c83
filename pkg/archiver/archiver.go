package archiver

import (
	"context"
	"time"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/ctdf"
	"github.com/travigo/stopdisplay/pkg/freshness"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const insertTimeout = 10 * time.Second

// Inserter is satisfied by *mongo.Collection.
type Inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Archiver stores every successful departure board.
type Archiver struct {
	StopReference string
	DataSource    *ctdf.DataSource
	Collection    Inserter
}

func (a *Archiver) Observe(transition freshness.Transition) {
	if transition.State() != freshness.Success {
		return
	}

	archived := a.convertSnapshot(transition.Snapshot)

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if _, err := a.Collection.InsertOne(ctx, archived); err != nil {
		log.Error().Err(err).Uint64("version", archived.Version).Msg("Failed to archive departure snapshot")
		return
	}

	log.Debug().
		Uint64("version", archived.Version).
		Int("departures", len(archived.Departures)).
		Msg("Archived departure snapshot")
}

func (a *Archiver) convertSnapshot(snapshot freshness.CacheSnapshot) *ctdf.ArchivedSnapshot {
	recordedAt := snapshot.LastSuccessAt.UTC()

	archivedDepartures := []*ctdf.ArchivedDeparture{}
	for _, record := range snapshot.Records {
		archivedDeparture := &ctdf.ArchivedDeparture{}
		if err := copier.Copy(archivedDeparture, &record); err != nil {
			log.Error().Err(err).Str("line", record.LineID).Msg("Failed to copy departure")
			continue
		}

		archivedDeparture.WaitMinutes = ctdf.MinutesUntil(record.ExpectedTime, recordedAt)
		if !record.AimedTime.IsZero() {
			archivedDeparture.DelaySeconds = int(record.ExpectedTime.Sub(record.AimedTime).Seconds())
		}

		archivedDepartures = append(archivedDepartures, archivedDeparture)
	}

	return &ctdf.ArchivedSnapshot{
		StopReference: a.StopReference,
		RecordedAt:    recordedAt,
		Version:       snapshot.Version,
		DataSource:    a.DataSource,
		Departures:    archivedDepartures,
	}
}
