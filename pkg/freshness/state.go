package freshness

import (
	"fmt"
	"time"

	"github.com/travigo/stopdisplay/pkg/ctdf"
)

// State is the freshness state of the departure cache. Idle only occurs
// before the first fetch; afterwards the store cycles through Loading and
// one of Success or Error forever.
type State int

const (
	Idle State = iota
	Loading
	Success
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CacheSnapshot is an immutable point-in-time view of the store.
// Records are ordered by expected time. After an error the records of the
// last success are kept so consumers can keep showing them.
type CacheSnapshot struct {
	State         State
	Records       []ctdf.DepartureRecord
	ErrorDetail   string
	LastSuccessAt time.Time
	Version       uint64
}

// HasLastSuccess reports whether a fetch ever succeeded (or a previous
// success was restored).
func (s CacheSnapshot) HasLastSuccess() bool {
	return !s.LastSuccessAt.IsZero()
}

// Stale reports whether the records on show are left over from an earlier
// success while the latest fetch failed.
func (s CacheSnapshot) Stale() bool {
	return s.State == Error && len(s.Records) > 0
}

// Age is the time since the last success, or 0 if there never was one.
func (s CacheSnapshot) Age(now time.Time) time.Duration {
	if !s.HasLastSuccess() {
		return 0
	}
	return now.Sub(s.LastSuccessAt)
}

// Transition is delivered to observers after every state change.
type Transition struct {
	From     State
	Snapshot CacheSnapshot
}

func (t Transition) State() State {
	return t.Snapshot.State
}
