package redis_client

import (
	"context"
	"fmt"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const queueConnectionTag = "stopdisplay"

type Config struct {
	Address  string
	Password string
	Database int
}

// Connect opens a client and pings it, retrying with exponential backoff
// for up to maxElapsed.
func Connect(ctx context.Context, config Config, maxElapsed time.Duration) (*redis.Client, error) {
	options := &redis.Options{
		Addr: config.Address,
		DB:   config.Database,
	}
	if config.Password != "" {
		options.Password = config.Password
	}

	client := redis.NewClient(options)

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = maxElapsed

	err := backoff.RetryNotify(func() error {
		return client.Ping(ctx).Err()
	}, backoff.WithContext(retry, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("address", config.Address).Dur("retry_in", wait).Msg("Redis not reachable yet")
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", config.Address, err)
	}

	log.Info().Str("address", config.Address).Int("database", config.Database).Msg("Connected to Redis")

	return client, nil
}

// OpenQueueConnection wraps client for rmq. Background queue errors are
// logged.
func OpenQueueConnection(client *redis.Client) (rmq.Connection, error) {
	errChan := make(chan error, 10)
	go func() {
		for err := range errChan {
			log.Error().Err(err).Msg("Queue connection error")
		}
	}()

	return rmq.OpenConnectionWithRedisClient(queueConnectionTag, client, errChan)
}
