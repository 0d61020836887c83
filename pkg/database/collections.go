package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const DepartureSnapshotsCollection = "departure_snapshots"

// Snapshots are pruned by Mongo after this many seconds.
const snapshotRetentionSeconds = int32(30 * 24 * 60 * 60)

func (m *MongoInstance) createIndexes(ctx context.Context) {
	m.createDepartureSnapshotsIndexes(ctx)
}

func (m *MongoInstance) createDepartureSnapshotsIndexes(ctx context.Context) {
	snapshotsCollection := m.GetCollection(DepartureSnapshotsCollection)
	snapshotsIndex := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "stopreference", Value: 1}, {Key: "recordedat", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "recordedat", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(snapshotRetentionSeconds),
		},
		{
			Keys: bson.D{{Key: "departures.journeyref", Value: 1}},
		},
	}

	opts := options.CreateIndexes()
	_, err := snapshotsCollection.Indexes().CreateMany(ctx, snapshotsIndex, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}
}
