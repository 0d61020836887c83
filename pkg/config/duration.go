package config

import (
	"fmt"
	"strings"
	"time"

	iso8601 "github.com/senseyeio/duration"
	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration syntax ("80s", "1m20s") or ISO-8601 ("PT80S").
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var value string
	if err := node.Decode(&value); err != nil {
		return err
	}

	parsed, err := ParseDuration(value)
	if err != nil {
		return err
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// ParseDuration parses either notation. ISO-8601 durations with calendar
// components are resolved against the Unix epoch, so "P1D" is 24h.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if strings.HasPrefix(strings.ToUpper(value), "P") {
		isoDuration, err := iso8601.ParseISO8601(strings.ToUpper(value))
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", value, err)
		}

		reference := time.Unix(0, 0).UTC()
		return isoDuration.Shift(reference).Sub(reference), nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return parsed, nil
}
