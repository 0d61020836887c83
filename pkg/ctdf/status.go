package ctdf

import (
	"strings"
	"unicode"
)

type DepartureStatus string

const (
	DepartureStatusOnTime    DepartureStatus = "on-time"
	DepartureStatusDelayed   DepartureStatus = "delayed"
	DepartureStatusCancelled DepartureStatus = "cancelled"
	DepartureStatusNoReport  DepartureStatus = "no-report"
	DepartureStatusUnknown   DepartureStatus = "unknown"
)

var departureStatusAliases = map[string]DepartureStatus{
	"ontime":    DepartureStatusOnTime,
	"delayed":   DepartureStatusDelayed,
	"late":      DepartureStatusDelayed,
	"cancelled": DepartureStatusCancelled,
	"canceled":  DepartureStatusCancelled,
	"noreport":  DepartureStatusNoReport,
}

// NormalizeStatus maps a free-form upstream status (onTime, NO_REPORT, Delayed...)
// to a DepartureStatus. Anything unrecognised is DepartureStatusUnknown.
func NormalizeStatus(raw string) DepartureStatus {
	key := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, raw)

	if status, ok := departureStatusAliases[key]; ok {
		return status
	}
	return DepartureStatusUnknown
}
