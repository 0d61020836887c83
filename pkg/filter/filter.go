// Package filter selects which departures reach the board using expr
// expressions such as `line == "STIF:Line::C01742:" && wait_minutes < 30`.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
	"github.com/travigo/stopdisplay/pkg/ctdf"
)

// Env is the set of variables visible to filter expressions.
type Env struct {
	Line          string `expr:"line"`
	Destination   string `expr:"destination"`
	DestinationID string `expr:"destination_id"`
	Direction     string `expr:"direction"`
	Journey       string `expr:"journey"`
	Status        string `expr:"status"`
	WaitMinutes   int    `expr:"wait_minutes"`
}

func envFor(record ctdf.DepartureRecord, now time.Time) Env {
	return Env{
		Line:          record.LineID,
		Destination:   record.Destination(),
		DestinationID: record.DestinationID,
		Direction:     record.DirectionID,
		Journey:       record.JourneyRef,
		Status:        string(record.Status),
		WaitMinutes:   ctdf.MinutesUntil(record.ExpectedTime, now),
	}
}

// Filter is a compiled expression. The nil Filter matches everything.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile returns nil for an empty source.
func Compile(source string) (*Filter, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	program, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", source, err)
	}

	return &Filter{source: source, program: program}, nil
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Match evaluates the filter for one record. Records the expression cannot be
// evaluated against are kept.
func (f *Filter) Match(record ctdf.DepartureRecord, now time.Time) bool {
	if f == nil {
		return true
	}

	result, err := expr.Run(f.program, envFor(record, now))
	if err != nil {
		log.Debug().Err(err).Str("filter", f.source).Str("line", record.LineID).Msg("Filter evaluation failed")
		return true
	}

	matched, _ := result.(bool)
	return matched
}

// Apply returns the matching records in their original order.
func (f *Filter) Apply(records []ctdf.DepartureRecord, now time.Time) []ctdf.DepartureRecord {
	if f == nil {
		return records
	}

	matched := make([]ctdf.DepartureRecord, 0, len(records))
	for _, record := range records {
		if f.Match(record, now) {
			matched = append(matched, record)
		}
	}
	return matched
}
