package siri_sm

import (
	"fmt"
)

type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindNetwork       ErrorKind = "network"
	KindTimeout       ErrorKind = "timeout"
	KindUpstream      ErrorKind = "upstream"
	KindMalformed     ErrorKind = "malformed"
)

// FetchError is the single failure type returned by Fetcher.Fetch.
// Status and Body are only set for KindUpstream.
type FetchError struct {
	Kind   ErrorKind
	Status int
	Body   string
	Detail string
	Err    error
}

// Sentinels for errors.Is; they match any FetchError of the same kind.
var (
	ErrConfiguration = &FetchError{Kind: KindConfiguration}
	ErrNetwork       = &FetchError{Kind: KindNetwork}
	ErrTimeout       = &FetchError{Kind: KindTimeout}
	ErrUpstream      = &FetchError{Kind: KindUpstream}
	ErrMalformed     = &FetchError{Kind: KindMalformed}
)

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindUpstream:
		if e.Body == "" {
			return fmt.Sprintf("upstream returned HTTP %d", e.Status)
		}
		return fmt.Sprintf("upstream returned HTTP %d: %s", e.Status, e.Body)
	case KindTimeout:
		if e.Detail == "" {
			return "request timed out"
		}
		return fmt.Sprintf("request timed out: %s", e.Detail)
	default:
		if e.Detail == "" {
			return fmt.Sprintf("%s error", e.Kind)
		}
		return fmt.Sprintf("%s error: %s", e.Kind, e.Detail)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func configurationError(format string, args ...any) *FetchError {
	return &FetchError{Kind: KindConfiguration, Detail: fmt.Sprintf(format, args...)}
}
