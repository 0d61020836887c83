package freshness

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Async runs observer on its own goroutine. Transitions are delivered in
// order; when more than buffer transitions are pending new ones are dropped.
// The returned stop function drains the queue and waits for the goroutine.
func Async(name string, buffer int, observer Observer) (Observer, func()) {
	if buffer < 1 {
		buffer = 1
	}

	queue := make(chan Transition, buffer)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for transition := range queue {
			invoke(name, observer, transition)
		}
	}()

	var mu sync.Mutex
	closed := false

	enqueue := func(transition Transition) {
		mu.Lock()
		defer mu.Unlock()

		if closed {
			return
		}

		select {
		case queue <- transition:
		default:
			log.Warn().
				Str("observer", name).
				Str("state", transition.State().String()).
				Uint64("version", transition.Snapshot.Version).
				Msg("Observer queue full, dropping transition")
		}
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			mu.Lock()
			closed = true
			close(queue)
			mu.Unlock()

			<-done
		})
	}

	return enqueue, stop
}
