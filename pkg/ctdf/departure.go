package ctdf

import (
	"math"
	"time"

	"golang.org/x/exp/slices"
)

// DepartureRecord is one predicted vehicle departure from a monitored stop.
type DepartureRecord struct {
	ExpectedTime time.Time `groups:"basic,detailed" json:"expected_time" bson:"expectedtime"`
	AimedTime    time.Time `groups:"detailed" json:"aimed_time,omitempty" bson:"aimedtime,omitempty"`

	LineID          string `groups:"basic,detailed" json:"line_id" bson:"lineid"`
	DestinationID   string `groups:"basic,detailed" json:"destination_id" bson:"destinationid"`
	DestinationName string `groups:"basic,detailed" json:"destination_name" bson:"destinationname"`
	DirectionID     string `groups:"detailed" json:"direction_id" bson:"directionid"`
	JourneyRef      string `groups:"detailed" json:"journey_ref" bson:"journeyref"`

	Status    DepartureStatus `groups:"basic,detailed" json:"status" bson:"status"`
	RawStatus string          `groups:"detailed" json:"raw_status" bson:"rawstatus"`
}

// Destination returns the best display value for the destination.
func (d DepartureRecord) Destination() string {
	if d.DestinationName != "" {
		return d.DestinationName
	}
	return d.DestinationID
}

// MinutesUntil is the whole number of minutes, rounded up, until expected.
// Departures in the past are reported as 0.
func MinutesUntil(expected time.Time, now time.Time) int {
	seconds := expected.Sub(now).Seconds()
	if seconds <= 0 {
		return 0
	}
	return int(math.Ceil(seconds / 60))
}

// SortDepartures orders records by ExpectedTime, keeping the upstream order
// for equal times.
func SortDepartures(records []DepartureRecord) {
	slices.SortStableFunc(records, func(a, b DepartureRecord) int {
		return a.ExpectedTime.Compare(b.ExpectedTime)
	})
}
