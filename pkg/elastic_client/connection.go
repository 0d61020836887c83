package elastic_client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Address  string
	Username string
	Password string
}

func Connect(config Config) (*elasticsearch.Client, error) {
	retryBackoff := backoff.NewExponentialBackOff()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{config.Address},
		Username:  config.Username,
		Password:  config.Password,
		Transport: http.DefaultTransport.(*http.Transport).Clone(),

		RetryOnStatus: []int{502, 503, 504, 429},

		RetryBackoff: func(i int) time.Duration {
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
		MaxRetries: 5,
	})
	if err != nil {
		return nil, err
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("contacting elasticsearch at %s: %w", config.Address, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch at %s returned %s", config.Address, res.Status())
	}

	log.Info().Str("address", config.Address).Msg("Elasticsearch client setup")

	return es, nil
}
