package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/stopdisplay/pkg/ctdf"
)

var now = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

func departures() []ctdf.DepartureRecord {
	return []ctdf.DepartureRecord{
		{LineID: "C01742", DestinationName: "Gare de Lyon", ExpectedTime: now.Add(2 * time.Minute), Status: ctdf.DepartureStatusOnTime},
		{LineID: "C01371", DestinationID: "STIF:StopArea:SP:1", ExpectedTime: now.Add(12 * time.Minute), Status: ctdf.DepartureStatusDelayed},
		{LineID: "C01742", DestinationName: "Nation", ExpectedTime: now.Add(40 * time.Minute), Status: ctdf.DepartureStatusCancelled},
	}
}

func TestCompileEmpty(t *testing.T) {
	filter, err := Compile("  ")
	require.NoError(t, err)
	assert.Nil(t, filter)

	assert.True(t, filter.Match(departures()[0], now))
	assert.Len(t, filter.Apply(departures(), now), 3)
	assert.Equal(t, "", filter.String())
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(`line ==`)
	assert.Error(t, err)

	_, err = Compile(`platform == "1"`)
	assert.Error(t, err, "unknown variable")

	_, err = Compile(`wait_minutes + 1`)
	assert.Error(t, err, "non-boolean result")
}

func TestApply(t *testing.T) {
	tests := []struct {
		source string
		want   []string
	}{
		{`line == "C01742"`, []string{"Gare de Lyon", "Nation"}},
		{`wait_minutes < 30`, []string{"Gare de Lyon", "STIF:StopArea:SP:1"}},
		{`status != "cancelled"`, []string{"Gare de Lyon", "STIF:StopArea:SP:1"}},
		{`destination startsWith "Gare"`, []string{"Gare de Lyon"}},
		{`line == "C01742" && wait_minutes > 30`, []string{"Nation"}},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			filter, err := Compile(tt.source)
			require.NoError(t, err)

			var got []string
			for _, record := range filter.Apply(departures(), now) {
				got = append(got, record.Destination())
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, filter.String())
		})
	}
}
