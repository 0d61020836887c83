package ctdf

import "time"

// ArchivedSnapshot is one successful departure board as stored for later
// analysis of prediction quality.
type ArchivedSnapshot struct {
	StopReference string    `groups:"basic" json:"stop_reference" bson:"stopreference"`
	RecordedAt    time.Time `groups:"basic" json:"recorded_at" bson:"recordedat"`
	Version       uint64    `groups:"detailed" json:"version" bson:"version"`

	DataSource *DataSource `groups:"internal" json:"datasource" bson:"datasource"`

	Departures []*ArchivedDeparture `groups:"basic" json:"departures" bson:"departures"`
}

type ArchivedDeparture struct {
	ExpectedTime time.Time `groups:"basic" bson:"expectedtime"`
	AimedTime    time.Time `groups:"basic" bson:"aimedtime,omitempty"`

	LineID        string `groups:"basic" bson:"lineid"`
	DestinationID string `groups:"basic" bson:"destinationid"`
	JourneyRef    string `groups:"basic" bson:"journeyref"`

	Status DepartureStatus `groups:"basic" bson:"status"`

	// Minutes shown on the board when the snapshot was recorded.
	WaitMinutes int `groups:"basic" bson:"waitminutes"`
	// Difference between expected and aimed time, when both are known.
	DelaySeconds int `groups:"detailed" bson:"delayseconds"`
}
