package freshness

import (
	"time"

	"github.com/travigo/stopdisplay/pkg/ctdf"
)

// FormattedItem is a departure as shown on the board.
type FormattedItem struct {
	Line        string               `json:"line"`
	Destination string               `json:"destination"`
	Status      ctdf.DepartureStatus `json:"status"`
	WaitMinutes int                  `json:"wait_minutes"`
}

// FormattedItems renders the first n records of a snapshot relative to now.
func FormattedItems(snapshot CacheSnapshot, now time.Time, n int) []FormattedItem {
	if n <= 0 {
		return []FormattedItem{}
	}

	records := snapshot.Records
	if len(records) > n {
		records = records[:n]
	}

	items := make([]FormattedItem, 0, len(records))
	for _, record := range records {
		items = append(items, FormattedItem{
			Line:        record.LineID,
			Destination: record.Destination(),
			Status:      record.Status,
			WaitMinutes: ctdf.MinutesUntil(record.ExpectedTime, now),
		})
	}

	return items
}
