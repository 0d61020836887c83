package siri_sm

import (
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/travigo/stopdisplay/pkg/ctdf"
)

// How many candidates are collected per requested result before the walk
// stops. Documents are not guaranteed to be time ordered.
const scanFactor = 3

// ParseDepartures walks an arbitrary JSON document depth first and collects
// every node that belongs to stopReference and carries a departure time.
func ParseDepartures(body []byte, stopReference string, resultLimit int) ([]ctdf.DepartureRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, &FetchError{Kind: KindMalformed, Detail: "response is not valid JSON"}
	}

	document := gjson.ParseBytes(body)
	if !document.IsObject() && !document.IsArray() {
		return nil, &FetchError{Kind: KindMalformed, Detail: "response is not a JSON object or array"}
	}

	w := &walker{
		stopReference: stopReference,
		max:           resultLimit * scanFactor,
	}
	w.walk(document, departureContext{})

	ctdf.SortDepartures(w.records)
	if len(w.records) > resultLimit {
		w.records = w.records[:resultLimit]
	}

	return w.records, nil
}

// Ancestor values inherited by nested departure nodes.
type departureContext struct {
	StopRef         string
	LineRef         string
	DirectionRef    string
	DestinationRef  string
	DestinationName string
	JourneyRef      string
}

func (c departureContext) inherit(node gjson.Result) departureContext {
	assign := func(target *string, paths ...string) {
		for _, path := range paths {
			if value := refValue(node.Get(path)); value != "" {
				*target = value
				return
			}
		}
	}

	assign(&c.StopRef, "StopPointRef", "MonitoringRef")
	assign(&c.LineRef, "LineRef")
	assign(&c.DirectionRef, "DirectionRef")
	assign(&c.DestinationRef, "DestinationRef")
	assign(&c.DestinationName, "DestinationName")
	assign(&c.JourneyRef, "DatedVehicleJourneyRef", "FramedVehicleJourneyRef.DatedVehicleJourneyRef", "VehicleJourneyRef")

	return c
}

type walker struct {
	stopReference string
	max           int
	records       []ctdf.DepartureRecord
	dropped       int
}

func (w *walker) full() bool {
	return len(w.records) >= w.max
}

func (w *walker) walk(node gjson.Result, context departureContext) bool {
	if w.full() {
		return false
	}

	switch {
	case node.IsObject():
		context = context.inherit(node)
		w.visit(node, context)
		node.ForEach(func(_, value gjson.Result) bool {
			return w.walk(value, context)
		})
	case node.IsArray():
		node.ForEach(func(_, value gjson.Result) bool {
			return w.walk(value, context)
		})
	}

	return !w.full()
}

func (w *walker) visit(node gjson.Result, context departureContext) {
	if w.full() || context.StopRef != w.stopReference {
		return
	}

	expected := refValue(node.Get("ExpectedDepartureTime"))
	aimed := refValue(node.Get("AimedDepartureTime"))
	if expected == "" && aimed == "" {
		return
	}

	timestamp := expected
	if timestamp == "" {
		timestamp = aimed
	}

	expectedTime, err := ctdf.ParseTimestamp(timestamp)
	if err != nil {
		w.dropped++
		log.Debug().Str("stop", w.stopReference).Str("timestamp", timestamp).Msg("Dropping departure with unparseable timestamp")
		return
	}

	record := ctdf.DepartureRecord{
		ExpectedTime:    expectedTime,
		LineID:          context.LineRef,
		DestinationID:   context.DestinationRef,
		DestinationName: context.DestinationName,
		DirectionID:     context.DirectionRef,
		JourneyRef:      context.JourneyRef,
	}
	if aimed != "" {
		if aimedTime, err := ctdf.ParseTimestamp(aimed); err == nil {
			record.AimedTime = aimedTime
		}
	}

	record.RawStatus = refValue(node.Get("DepartureStatus"))
	if record.RawStatus == "" {
		record.RawStatus = refValue(node.Get("ArrivalStatus"))
	}
	record.Status = ctdf.NormalizeStatus(record.RawStatus)

	w.records = append(w.records, record)
}

// refValue reads SIRI reference values which appear as plain strings,
// {"value": "..."} objects or lists of those.
func refValue(result gjson.Result) string {
	switch {
	case !result.Exists():
		return ""
	case result.IsObject():
		return refValue(result.Get("value"))
	case result.IsArray():
		first := ""
		result.ForEach(func(_, value gjson.Result) bool {
			first = refValue(value)
			return first == ""
		})
		return first
	case result.Type == gjson.String:
		return result.String()
	default:
		return ""
	}
}
