package ctdf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinutesUntil(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expected time.Time
		want     int
	}{
		{name: "ninety seconds rounds up", expected: now.Add(90 * time.Second), want: 2},
		{name: "past departure is zero", expected: now.Add(-10 * time.Second), want: 0},
		{name: "exactly one minute", expected: now.Add(60 * time.Second), want: 1},
		{name: "now is zero", expected: now, want: 0},
		{name: "one second is a minute", expected: now.Add(time.Second), want: 1},
		{name: "two and a half minutes", expected: now.Add(150 * time.Second), want: 3},
		{name: "other timezone", expected: now.Add(500 * time.Second).In(time.FixedZone("CET", 3600)), want: 9},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MinutesUntil(tt.expected, now))
		})
	}
}

func TestSortDeparturesIsStable(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	records := []DepartureRecord{
		{ExpectedTime: base.Add(5 * time.Minute), LineID: "late"},
		{ExpectedTime: base.Add(time.Minute), LineID: "first"},
		{ExpectedTime: base.Add(time.Minute), LineID: "second"},
	}

	SortDepartures(records)

	require.Len(t, records, 3)
	assert.Equal(t, "first", records[0].LineID)
	assert.Equal(t, "second", records[1].LineID)
	assert.Equal(t, "late", records[2].LineID)
}

func TestDestinationFallsBackToID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Gare de Lyon", DepartureRecord{DestinationID: "STIF:StopArea:1", DestinationName: "Gare de Lyon"}.Destination())
	assert.Equal(t, "STIF:StopArea:1", DepartureRecord{DestinationID: "STIF:StopArea:1"}.Destination())
}

func TestNormalizeStatus(t *testing.T) {
	t.Parallel()

	tests := map[string]DepartureStatus{
		"onTime":      DepartureStatusOnTime,
		"ON_TIME":     DepartureStatusOnTime,
		"delayed":     DepartureStatusDelayed,
		"Late":        DepartureStatusDelayed,
		"cancelled":   DepartureStatusCancelled,
		"canceled":    DepartureStatusCancelled,
		"NO_REPORT":   DepartureStatusNoReport,
		"noReport":    DepartureStatusNoReport,
		"":            DepartureStatusUnknown,
		"arrived":     DepartureStatusUnknown,
		"something 1": DepartureStatusUnknown,
	}

	for raw, want := range tests {
		assert.Equal(t, want, NormalizeStatus(raw), raw)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)

	for _, value := range []string{
		"2026-03-01T07:30:00Z",
		"2026-03-01T07:30:00.000Z",
		"2026-03-01T08:30:00+01:00",
		"2026-03-01T08:30:00+0100",
		"2026-03-01T07:30:00",
		"2026-03-01T07:30",
		" 2026-03-01T07:30:00Z ",
	} {
		parsed, err := ParseTimestamp(value)
		require.NoError(t, err, value)
		assert.True(t, want.Equal(parsed), value)
		assert.Equal(t, time.UTC, parsed.Location(), value)
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"", "soon", "2026-13-45T99:00:00Z", "07:30"} {
		_, err := ParseTimestamp(value)
		assert.ErrorIs(t, err, ErrInvalidTimestamp, value)
	}
}
