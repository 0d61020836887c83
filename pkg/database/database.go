package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoInstance struct {
	Client   *mongo.Client
	Database *mongo.Database
}

const connectTimeout = 30 * time.Second

func ConnectMongoDB(ctx context.Context, connectionString string, dbName string) (*MongoInstance, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	instance := &MongoInstance{
		Client:   client,
		Database: client.Database(dbName),
	}

	instance.createIndexes(connectCtx)

	log.Info().Str("database", dbName).Msg("Connected to MongoDB")

	return instance, nil
}

func (m *MongoInstance) GetCollection(collectionName string) *mongo.Collection {
	return m.Database.Collection(collectionName)
}

func (m *MongoInstance) Disconnect(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
