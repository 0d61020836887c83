package freshness

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
	"github.com/travigo/stopdisplay/pkg/clock"
	"github.com/travigo/stopdisplay/pkg/ctdf"
	"golang.org/x/exp/slices"
)

// Observer is notified of every store transition. Observers run on the
// writer's goroutine in the order transitions were applied, so they must be
// quick; wrap anything that does I/O with Async. Observers may call
// Snapshot but must not call the store's setters.
type Observer func(Transition)

type subscription struct {
	id       uint64
	name     string
	observer Observer
}

// Store holds the latest departure records and their freshness state.
// Snapshots are replaced atomically and read without locking; writers are
// serialised by a single mutex.
type Store struct {
	clock   clock.Clock
	current atomic.Pointer[CacheSnapshot]

	writeMu sync.Mutex

	observersMu  sync.RWMutex
	observers    []subscription
	nextObserver uint64
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}

	s := &Store{clock: clk}
	s.current.Store(&CacheSnapshot{State: Idle})
	return s
}

// Snapshot returns a copy of the current state. It never blocks on writers.
func (s *Store) Snapshot() CacheSnapshot {
	snapshot := *s.current.Load()
	snapshot.Records = slices.Clone(snapshot.Records)
	return snapshot
}

// SetLoading marks a fetch as started. Records are kept, the error is cleared.
func (s *Store) SetLoading() {
	s.apply(func(next *CacheSnapshot) bool {
		next.State = Loading
		next.ErrorDetail = ""
		return true
	})
}

// SetSuccess replaces the records and stamps the success time.
func (s *Store) SetSuccess(records []ctdf.DepartureRecord) {
	sorted := slices.Clone(records)
	ctdf.SortDepartures(sorted)

	s.apply(func(next *CacheSnapshot) bool {
		next.State = Success
		next.Records = sorted
		next.ErrorDetail = ""
		next.LastSuccessAt = s.clock.Now()
		return true
	})
}

// SetError records a failed fetch. Records from the last success are kept.
func (s *Store) SetError(detail string) {
	s.apply(func(next *CacheSnapshot) bool {
		next.State = Error
		next.ErrorDetail = detail
		return true
	})
}

// Restore seeds the store with records persisted by an earlier process.
// It only applies before the first fetch and leaves the state Idle.
func (s *Store) Restore(records []ctdf.DepartureRecord, lastSuccessAt time.Time) bool {
	sorted := slices.Clone(records)
	ctdf.SortDepartures(sorted)

	return s.apply(func(next *CacheSnapshot) bool {
		if next.State != Idle || next.HasLastSuccess() {
			return false
		}
		next.Records = sorted
		next.LastSuccessAt = lastSuccessAt.UTC()
		return true
	})
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(name string, observer Observer) func() {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()

	s.nextObserver++
	id := s.nextObserver
	s.observers = append(s.observers, subscription{id: id, name: name, observer: observer})

	return func() {
		s.observersMu.Lock()
		defer s.observersMu.Unlock()

		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) apply(mutate func(next *CacheSnapshot) bool) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	previous := s.current.Load()
	next := *previous
	if !mutate(&next) {
		return false
	}
	next.Version = previous.Version + 1
	s.current.Store(&next)

	// Notifying under writeMu keeps observers in application order.
	s.notify(Transition{From: previous.State, Snapshot: next})
	return true
}

func (s *Store) notify(transition Transition) {
	s.observersMu.RLock()
	observers := slices.Clone(s.observers)
	s.observersMu.RUnlock()

	for _, sub := range observers {
		event := transition
		event.Snapshot.Records = slices.Clone(transition.Snapshot.Records)
		invoke(sub.name, sub.observer, event)
	}
}

func invoke(name string, observer Observer, transition Transition) {
	var catcher panics.Catcher
	catcher.Try(func() {
		observer(transition)
	})

	if recovered := catcher.Recovered(); recovered != nil {
		log.Error().
			Str("observer", name).
			Str("state", transition.State().String()).
			Err(recovered.AsError()).
			Msg("Store observer panicked")
	}
}
