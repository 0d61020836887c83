package siri_sm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/ctdf"
	"github.com/travigo/stopdisplay/pkg/util"
)

const DefaultEndpoint = "https://prim.iledefrance-mobilites.fr/marketplace/stop-monitoring"

const bodyExcerptLength = 256
const maxBodySize = 16 << 20

// Fetcher performs one SIRI Stop Monitoring request per call and parses the
// response into departure records. It holds no per-call state.
type Fetcher struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewFetcher(endpoint string, apiKey string) *Fetcher {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Fetcher{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{},
	}
}

// Fetch returns up to resultLimit departures for stopReference, ordered by
// expected time. Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, stopReference string, resultLimit int, timeout time.Duration) ([]ctdf.DepartureRecord, error) {
	if strings.TrimSpace(stopReference) == "" {
		return nil, configurationError("stop reference is empty")
	}
	if resultLimit < 1 {
		return nil, configurationError("result limit must be at least 1, got %d", resultLimit)
	}
	if timeout <= 0 {
		return nil, configurationError("timeout must be positive, got %s", timeout)
	}
	if f.APIKey == "" {
		return nil, configurationError("API key is not set")
	}

	requestURL, err := url.Parse(f.Endpoint)
	if err != nil || requestURL.Scheme == "" || requestURL.Host == "" {
		return nil, configurationError("invalid endpoint %q", f.Endpoint)
	}
	query := requestURL.Query()
	query.Set("MonitoringRef", stopReference)
	requestURL.RawQuery = query.Encode()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return nil, configurationError("building request: %s", err)
	}
	req.Header.Set("apikey", f.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "stopdisplay")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	startTime := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	log.Debug().
		Str("url", requestURL.Redacted()).
		Int("status", resp.StatusCode).
		Str("contenttype", resp.Header.Get("Content-Type")).
		Int("bytes", len(body)).
		Dur("duration", time.Since(startTime)).
		Msg("Stop monitoring response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			Kind:   KindUpstream,
			Status: resp.StatusCode,
			Body:   util.TrimString(strings.TrimSpace(string(body)), bodyExcerptLength),
		}
	}

	return ParseDepartures(body, stopReference, resultLimit)
}

func classifyTransportError(err error) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: KindTimeout, Err: err}
	}

	return &FetchError{Kind: KindNetwork, Detail: fmt.Sprint(unwrapURLError(err)), Err: err}
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
