package ctdf

import (
	"time"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Body      interface{}
}

type EventType string

const (
	EventTypeDepartureBoardLoading  EventType = "DepartureBoardLoading"
	EventTypeDepartureBoardUpdated  EventType = "DepartureBoardUpdated"
	EventTypeDepartureBoardFailed   EventType = "DepartureBoardFailed"
	EventTypeDepartureBoardRestored EventType = "DepartureBoardRestored"
)
