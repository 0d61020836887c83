// Package cachedresults keeps the last successful departure list in Redis so
// a restarted display has something to show before its first fetch returns.
package cachedresults

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/ctdf"
	"github.com/travigo/stopdisplay/pkg/freshness"
)

const keyPrefix = "stopdisplay:departures:"

const writeTimeout = 5 * time.Second

type Entry struct {
	StopReference string                 `json:"stop_reference"`
	Records       []ctdf.DepartureRecord `json:"records"`
	LastSuccessAt time.Time              `json:"last_success_at"`
}

type Restorer interface {
	Restore(records []ctdf.DepartureRecord, lastSuccessAt time.Time) bool
}

type Cache struct {
	Cache         *cache.Cache[string]
	StopReference string
}

func New(client *redis.Client, stopReference string, ttl time.Duration) *Cache {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	return &Cache{
		Cache:         cache.New[string](redisStore),
		StopReference: stopReference,
	}
}

func (c *Cache) Key() string {
	return keyPrefix + c.StopReference
}

func (c *Cache) Save(ctx context.Context, entry Entry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return c.Cache.Set(ctx, c.Key(), string(encoded))
}

// Load returns false without an error when nothing is cached.
func (c *Cache) Load(ctx context.Context) (Entry, bool, error) {
	var entry Entry

	encoded, err := c.Cache.Get(ctx, c.Key())
	if err != nil {
		if isNotFound(err) {
			return entry, false, nil
		}
		return entry, false, err
	}

	if err := json.Unmarshal([]byte(encoded), &entry); err != nil {
		return entry, false, fmt.Errorf("decoding cached departures: %w", err)
	}

	return entry, true, nil
}

// RestoreInto seeds store with the cached entry, if any.
func (c *Cache) RestoreInto(ctx context.Context, store Restorer) bool {
	entry, found, err := c.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Str("key", c.Key()).Msg("Failed to load cached departures")
		return false
	}
	if !found || entry.StopReference != c.StopReference {
		return false
	}

	restored := store.Restore(entry.Records, entry.LastSuccessAt)
	if restored {
		log.Info().
			Int("departures", len(entry.Records)).
			Time("last_success_at", entry.LastSuccessAt).
			Msg("Restored cached departures")
	}
	return restored
}

// Observe writes every successful snapshot. Wrap with freshness.Async.
func (c *Cache) Observe(transition freshness.Transition) {
	if transition.State() != freshness.Success {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := c.Save(ctx, Entry{
		StopReference: c.StopReference,
		Records:       transition.Snapshot.Records,
		LastSuccessAt: transition.Snapshot.LastSuccessAt,
	})
	if err != nil {
		log.Error().Err(err).Str("key", c.Key()).Msg("Failed to cache departures")
	}
}

func isNotFound(err error) bool {
	var notFound *store.NotFound
	return errors.As(err, &notFound) || errors.Is(err, redis.Nil)
}
