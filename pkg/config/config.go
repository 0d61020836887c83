package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/siri_sm"
	"github.com/travigo/stopdisplay/pkg/util"
	"gopkg.in/yaml.v3"
)

const (
	DefaultStopReference   = "STIF:StopPoint:Q:7800:"
	DefaultRefreshInterval = 80 * time.Second
	DefaultRequestTimeout  = 15 * time.Second
	DefaultResultLimit     = 2
	DefaultDisplayCount    = 2
	DefaultListenAddress   = ":8080"
	DefaultCacheTTL        = 24 * time.Hour
	DefaultEventsQueue     = "stopdisplay-events"
	DefaultMongoDatabase   = "stopdisplay"
	DefaultIndexPrefix     = "stopdisplay-transitions"
)

type Config struct {
	StopReference   string   `yaml:"stop_reference"`
	Endpoint        string   `yaml:"endpoint"`
	APIKey          string   `yaml:"api_key"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	ResultLimit     int      `yaml:"result_limit"`
	RequestTimeout  Duration `yaml:"request_timeout"`

	DisplayCount  int    `yaml:"display_count"`
	Filter        string `yaml:"filter"`
	ListenAddress string `yaml:"listen_address"`

	Redis         RedisConfig         `yaml:"redis"`
	Mongo         MongoConfig         `yaml:"mongo"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
}

// RedisConfig enables the last-known-good cache and the event queue when
// Address is set.
type RedisConfig struct {
	Address     string   `yaml:"address"`
	Password    string   `yaml:"password"`
	Database    int      `yaml:"database"`
	CacheTTL    Duration `yaml:"cache_ttl"`
	EventsQueue string   `yaml:"events_queue"`
}

// MongoConfig enables the snapshot archive when Connection is set.
type MongoConfig struct {
	Connection string `yaml:"connection"`
	Database   string `yaml:"database"`
}

// ElasticsearchConfig enables the transition indexer when Address is set.
type ElasticsearchConfig struct {
	Address     string `yaml:"address"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	IndexPrefix string `yaml:"index_prefix"`
}

func Default() Config {
	return Config{
		StopReference:   DefaultStopReference,
		Endpoint:        siri_sm.DefaultEndpoint,
		RefreshInterval: Duration(DefaultRefreshInterval),
		ResultLimit:     DefaultResultLimit,
		RequestTimeout:  Duration(DefaultRequestTimeout),
		DisplayCount:    DefaultDisplayCount,
		ListenAddress:   DefaultListenAddress,
		Redis: RedisConfig{
			CacheTTL:    Duration(DefaultCacheTTL),
			EventsQueue: DefaultEventsQueue,
		},
		Mongo: MongoConfig{
			Database: DefaultMongoDatabase,
		},
		Elasticsearch: ElasticsearchConfig{
			IndexPrefix: DefaultIndexPrefix,
		},
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and finally the environment.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("reading config file: %w", err)
		}

		if err := config.decodeYAML(contents); err != nil {
			return config, fmt.Errorf("parsing config file %s: %w", path, err)
		}

		log.Debug().Str("path", path).Msg("Loaded config file")
	}

	if err := config.ApplyEnvironment(util.GetEnvironmentVariables()); err != nil {
		return config, err
	}

	return config, nil
}

func (c *Config) decodeYAML(contents []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)

	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnvironment overrides fields from STOPDISPLAY_* variables. The API key
// is also read from PRIM_API_KEY.
func (c *Config) ApplyEnvironment(env map[string]string) error {
	setString := func(target *string, names ...string) {
		if value := util.FirstEnvironmentVariable(env, names...); value != "" {
			*target = value
		}
	}

	setString(&c.StopReference, "STOPDISPLAY_STOP_REFERENCE")
	setString(&c.Endpoint, "STOPDISPLAY_ENDPOINT")
	setString(&c.APIKey, "STOPDISPLAY_API_KEY", "PRIM_API_KEY")
	setString(&c.Filter, "STOPDISPLAY_FILTER")
	setString(&c.ListenAddress, "STOPDISPLAY_LISTEN_ADDRESS")

	setString(&c.Redis.Address, "STOPDISPLAY_REDIS_ADDRESS")
	setString(&c.Redis.Password, "STOPDISPLAY_REDIS_PASSWORD")
	setString(&c.Redis.EventsQueue, "STOPDISPLAY_REDIS_EVENTS_QUEUE")

	setString(&c.Mongo.Connection, "STOPDISPLAY_MONGODB_CONNECTION")
	setString(&c.Mongo.Database, "STOPDISPLAY_MONGODB_DATABASE")

	setString(&c.Elasticsearch.Address, "STOPDISPLAY_ELASTICSEARCH_ADDRESS")
	setString(&c.Elasticsearch.Username, "STOPDISPLAY_ELASTICSEARCH_USERNAME")
	setString(&c.Elasticsearch.Password, "STOPDISPLAY_ELASTICSEARCH_PASSWORD")
	setString(&c.Elasticsearch.IndexPrefix, "STOPDISPLAY_ELASTICSEARCH_INDEX_PREFIX")

	ints := []struct {
		name   string
		target *int
	}{
		{"STOPDISPLAY_RESULT_LIMIT", &c.ResultLimit},
		{"STOPDISPLAY_DISPLAY_COUNT", &c.DisplayCount},
		{"STOPDISPLAY_REDIS_DATABASE", &c.Redis.Database},
	}
	for _, item := range ints {
		value := util.FirstEnvironmentVariable(env, item.name)
		if value == "" {
			continue
		}

		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", item.name, err)
		}
		*item.target = n
	}

	durations := []struct {
		name   string
		target *Duration
	}{
		{"STOPDISPLAY_REFRESH_INTERVAL", &c.RefreshInterval},
		{"STOPDISPLAY_REQUEST_TIMEOUT", &c.RequestTimeout},
		{"STOPDISPLAY_REDIS_CACHE_TTL", &c.Redis.CacheTTL},
	}
	for _, item := range durations {
		value := util.FirstEnvironmentVariable(env, item.name)
		if value == "" {
			continue
		}

		d, err := ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", item.name, err)
		}
		*item.target = Duration(d)
	}

	return nil
}

// Validate reports every invalid field at once. A missing API key is not an
// error here; the fetcher reports it on every attempt so the board shows it.
func (c Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.StopReference) == "" {
		problems = append(problems, "stop reference is empty")
	}
	if c.ResultLimit < 1 {
		problems = append(problems, fmt.Sprintf("result limit must be at least 1, got %d", c.ResultLimit))
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.RefreshInterval <= 0 {
		problems = append(problems, fmt.Sprintf("refresh interval must be positive, got %s", c.RefreshInterval))
	}
	if c.DisplayCount < 1 {
		problems = append(problems, fmt.Sprintf("display count must be at least 1, got %d", c.DisplayCount))
	}
	if c.Redis.Address != "" && c.Redis.CacheTTL <= 0 {
		problems = append(problems, fmt.Sprintf("redis cache ttl must be positive, got %s", c.Redis.CacheTTL))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
