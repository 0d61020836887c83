package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/api"
	"github.com/travigo/stopdisplay/pkg/api/routes"
	"github.com/travigo/stopdisplay/pkg/archiver"
	"github.com/travigo/stopdisplay/pkg/cachedresults"
	"github.com/travigo/stopdisplay/pkg/clock"
	"github.com/travigo/stopdisplay/pkg/config"
	"github.com/travigo/stopdisplay/pkg/ctdf"
	"github.com/travigo/stopdisplay/pkg/database"
	"github.com/travigo/stopdisplay/pkg/elastic_client"
	"github.com/travigo/stopdisplay/pkg/events"
	"github.com/travigo/stopdisplay/pkg/filter"
	"github.com/travigo/stopdisplay/pkg/freshness"
	"github.com/travigo/stopdisplay/pkg/metrics"
	"github.com/travigo/stopdisplay/pkg/redis_client"
	"github.com/travigo/stopdisplay/pkg/refresh"
	"github.com/travigo/stopdisplay/pkg/siri_sm"
)

const (
	sinkBuffer        = 32
	connectMaxElapsed = 30 * time.Second
	closeTimeout      = 10 * time.Second
)

// Service is the assembled display backend: store, coordinator, sinks and
// HTTP API.
type Service struct {
	Config      config.Config
	Clock       clock.Clock
	Store       *freshness.Store
	Coordinator *refresh.Coordinator
	Metrics     *metrics.Registry
	App         *fiber.App

	cache   *cachedresults.Cache
	closers []func(ctx context.Context)
}

func NewService(ctx context.Context, cfg config.Config, clk clock.Clock) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	departureFilter, err := filter.Compile(cfg.Filter)
	if err != nil {
		return nil, err
	}

	s := &Service{
		Config:  cfg,
		Clock:   clk,
		Store:   freshness.NewStore(clk),
		Metrics: metrics.New(cfg.StopReference),
	}
	s.Store.Subscribe("metrics", s.Metrics.Observe)

	if err := s.setupSinks(ctx); err != nil {
		s.Close()
		return nil, err
	}

	fetcher := siri_sm.NewFetcher(cfg.Endpoint, cfg.APIKey)
	s.Coordinator = refresh.New(s.Store, fetcher, refresh.Config{
		StopReference:  cfg.StopReference,
		ResultLimit:    cfg.ResultLimit,
		RequestTimeout: cfg.RequestTimeout.Duration(),
		Interval:       cfg.RefreshInterval.Duration(),
	}, refresh.WithClock(clk), refresh.WithMetrics(s.Metrics))

	s.App = api.NewApp(&routes.Board{
		Store:         s.Store,
		Refresher:     s.Coordinator,
		StopReference: cfg.StopReference,
		DisplayCount:  cfg.DisplayCount,
		Filter:        departureFilter,
		Clock:         clk,
	}, s.Metrics.Gatherer())

	// Restore after the sinks subscribed so they see the restored board.
	if s.cache != nil {
		s.cache.RestoreInto(ctx, s.Store)
	}

	return s, nil
}

func (s *Service) subscribeAsync(name string, observer freshness.Observer) {
	asyncObserver, stop := freshness.Async(name, sinkBuffer, observer)
	unsubscribe := s.Store.Subscribe(name, asyncObserver)

	s.closers = append(s.closers, func(context.Context) {
		unsubscribe()
		stop()
	})
}

func (s *Service) setupSinks(ctx context.Context) error {
	cfg := s.Config

	if cfg.Redis.Address != "" {
		client, err := redis_client.Connect(ctx, redis_client.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.Database,
		}, connectMaxElapsed)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func(context.Context) {
			client.Close()
		})

		s.cache = cachedresults.New(client, cfg.StopReference, cfg.Redis.CacheTTL.Duration())
		s.subscribeAsync("cachedresults", s.cache.Observe)

		connection, err := redis_client.OpenQueueConnection(client)
		if err != nil {
			return fmt.Errorf("opening queue connection: %w", err)
		}
		publisher, err := events.NewPublisher(connection, cfg.Redis.EventsQueue, cfg.StopReference)
		if err != nil {
			return err
		}
		s.subscribeAsync("events", publisher.Observe)
	} else {
		log.Info().Msg("Skipping Redis setup")
	}

	if cfg.Mongo.Connection != "" {
		instance, err := database.ConnectMongoDB(ctx, cfg.Mongo.Connection, cfg.Mongo.Database)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func(ctx context.Context) {
			if err := instance.Disconnect(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		})

		snapshotArchiver := &archiver.Archiver{
			StopReference: cfg.StopReference,
			DataSource: &ctdf.DataSource{
				OriginalFormat: "siri-sm-json",
				Provider:       "PRIM",
				Dataset:        "stop-monitoring",
				Identifier:     cfg.Endpoint,
			},
			Collection: instance.GetCollection(database.DepartureSnapshotsCollection),
		}
		s.subscribeAsync("archiver", snapshotArchiver.Observe)
	} else {
		log.Info().Msg("Skipping MongoDB setup")
	}

	if cfg.Elasticsearch.Address != "" {
		es, err := elastic_client.Connect(elastic_client.Config{
			Address:  cfg.Elasticsearch.Address,
			Username: cfg.Elasticsearch.Username,
			Password: cfg.Elasticsearch.Password,
		})
		if err != nil {
			return err
		}

		indexer, err := elastic_client.NewIndexer(es, cfg.Elasticsearch.IndexPrefix, cfg.StopReference)
		if err != nil {
			return err
		}
		// Registered before the async wrapper so the queue drains first.
		s.closers = append(s.closers, func(ctx context.Context) {
			if err := indexer.Close(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to flush Elasticsearch indexer")
			}
		})
		s.subscribeAsync("elastic", indexer.Observe)
	} else {
		log.Info().Msg("Skipping Elasticsearch setup")
	}

	return nil
}

// Run serves the API and keeps the board fresh until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	serverCtx, cancelServer := context.WithCancel(context.Background())
	defer cancelServer()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- api.SetupServer(serverCtx, s.Config.ListenAddress, s.App)
	}()

	s.Coordinator.Start(ctx, true)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("web server: %w", err)
		}
	}

	log.Info().Msg("Shutting down")

	s.Coordinator.Stop()
	s.Coordinator.Wait()

	cancelServer()
	s.Close()

	return runErr
}

// Close drains the sinks and releases connections, last opened first.
func (s *Service) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
	s.closers = nil
}
