package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/travigo/stopdisplay/pkg/clock"
	"github.com/travigo/stopdisplay/pkg/ctdf"
	"github.com/travigo/stopdisplay/pkg/siri_sm"
)

const DefaultInterval = 80 * time.Second

type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

type SkipReason string

const (
	SkipInFlight SkipReason = "in_flight"
	SkipStopped  SkipReason = "stopped"
)

// Store is the part of freshness.Store the coordinator writes to.
type Store interface {
	SetLoading()
	SetSuccess(records []ctdf.DepartureRecord)
	SetError(detail string)
}

type Fetcher interface {
	Fetch(ctx context.Context, stopReference string, resultLimit int, timeout time.Duration) ([]ctdf.DepartureRecord, error)
}

// Recorder receives refresh measurements. metrics.Registry implements it.
type Recorder interface {
	FetchStarted(trigger Trigger)
	FetchFinished(trigger Trigger, outcome string, duration time.Duration, departures int)
	TriggerSkipped(trigger Trigger, reason SkipReason)
}

type Config struct {
	StopReference  string
	ResultLimit    int
	RequestTimeout time.Duration
	Interval       time.Duration
}

type Option func(*Coordinator)

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

func WithMetrics(recorder Recorder) Option {
	return func(c *Coordinator) {
		c.metrics = recorder
	}
}

// Coordinator keeps the store fresh. Scheduled ticks, manual refreshes and
// the start-up fetch share one in-flight flag so at most one fetch runs at a
// time; triggers that find a fetch running are dropped.
type Coordinator struct {
	store   Store
	fetcher Fetcher
	config  Config
	clock   clock.Clock
	metrics Recorder

	mu             sync.Mutex
	running        bool
	inFlight       bool
	fetchCtx       context.Context
	cancelSchedule context.CancelFunc
	scheduleDone   chan struct{}

	fetches conc.WaitGroup
}

func New(store Store, fetcher Fetcher, config Config, opts ...Option) *Coordinator {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	c := &Coordinator{
		store:    store,
		fetcher:  fetcher,
		config:   config,
		clock:    clock.New(),
		metrics:  noopRecorder{},
		fetchCtx: context.Background(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins periodic refreshing. With runImmediately the first fetch runs
// on the caller's goroutine before the schedule is armed. Calling Start while
// running does nothing. Cancelling ctx stops the schedule like Stop.
func (c *Coordinator) Start(ctx context.Context, runImmediately bool) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}

	scheduleCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	armed := make(chan time.Time, 1)

	c.running = true
	// Fetches outlive Stop and ctx cancellation so their result always commits.
	c.fetchCtx = context.WithoutCancel(ctx)
	c.cancelSchedule = cancel
	c.scheduleDone = done
	c.mu.Unlock()

	go c.schedule(scheduleCtx, armed, done)

	log.Info().
		Str("stop", c.config.StopReference).
		Dur("interval", c.config.Interval).
		Bool("immediate", runImmediately).
		Msg("Starting refresh coordinator")

	if runImmediately {
		c.trigger(TriggerStartup, false)
	}

	armed <- c.clock.Now()
}

// Stop cancels the schedule and waits for it to exit. A fetch already in
// flight carries on and commits its result; no new fetch starts afterwards.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}

	c.running = false
	cancel := c.cancelSchedule
	done := c.scheduleDone
	c.mu.Unlock()

	cancel()
	<-done

	log.Info().Str("stop", c.config.StopReference).Msg("Stopped refresh coordinator")
}

// RefreshNow starts an out-of-band fetch in the background. It returns false
// without queueing anything when a fetch is already in flight or the
// coordinator is not running.
func (c *Coordinator) RefreshNow() bool {
	return c.trigger(TriggerManual, true)
}

func (c *Coordinator) IsRefreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Wait blocks until every background fetch has finished.
func (c *Coordinator) Wait() {
	c.fetches.Wait()
}

func (c *Coordinator) schedule(ctx context.Context, armed <-chan time.Time, done chan struct{}) {
	defer close(done)
	defer c.scheduleExited(done)

	var anchor time.Time
	select {
	case anchor = <-armed:
	case <-ctx.Done():
		return
	}

	interval := c.config.Interval
	for {
		now := c.clock.Now()
		timer := c.clock.NewTimer(nextTick(anchor, now, interval).Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
			c.trigger(TriggerSchedule, true)
		}
	}
}

func (c *Coordinator) scheduleExited(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Only relevant when the parent context was cancelled rather than Stop.
	if c.scheduleDone == done {
		c.running = false
	}
}

// nextTick returns the first tick of the schedule anchored at anchor that is
// strictly after now. Missed ticks are skipped, never replayed.
func nextTick(anchor time.Time, now time.Time, interval time.Duration) time.Time {
	if now.Before(anchor) {
		return anchor.Add(interval)
	}
	elapsed := now.Sub(anchor)
	return anchor.Add((elapsed/interval + 1) * interval)
}

func (c *Coordinator) trigger(trigger Trigger, background bool) bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		c.skipped(trigger, SkipStopped)
		return false
	}
	if c.inFlight {
		c.mu.Unlock()
		c.skipped(trigger, SkipInFlight)
		return false
	}
	c.inFlight = true
	ctx := c.fetchCtx
	c.mu.Unlock()

	if background {
		c.fetches.Go(func() {
			c.execute(ctx, trigger)
		})
	} else {
		c.execute(ctx, trigger)
	}

	return true
}

func (c *Coordinator) skipped(trigger Trigger, reason SkipReason) {
	c.metrics.TriggerSkipped(trigger, reason)

	log.Debug().
		Str("trigger", string(trigger)).
		Str("reason", string(reason)).
		Msg("Refresh skipped")
}

func (c *Coordinator) execute(ctx context.Context, trigger Trigger) {
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	c.metrics.FetchStarted(trigger)
	c.store.SetLoading()

	started := c.clock.Now()
	records, err := c.fetch(ctx)
	duration := c.clock.Now().Sub(started)

	if err != nil {
		c.store.SetError(err.Error())
		c.metrics.FetchFinished(trigger, Outcome(err), duration, 0)

		log.Error().
			Err(err).
			Str("trigger", string(trigger)).
			Str("stop", c.config.StopReference).
			Dur("duration", duration).
			Msg("Departure refresh failed")
		return
	}

	c.store.SetSuccess(records)
	c.metrics.FetchFinished(trigger, Outcome(nil), duration, len(records))

	log.Info().
		Str("trigger", string(trigger)).
		Str("stop", c.config.StopReference).
		Int("departures", len(records)).
		Dur("duration", duration).
		Msg("Departure refresh succeeded")
}

func (c *Coordinator) fetch(ctx context.Context) (records []ctdf.DepartureRecord, err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		records, err = c.fetcher.Fetch(ctx, c.config.StopReference, c.config.ResultLimit, c.config.RequestTimeout)
	})

	if recovered := catcher.Recovered(); recovered != nil {
		log.Error().Err(recovered.AsError()).Msg("Departure fetcher panicked")
		return nil, &PanicError{Value: recovered.Value}
	}

	return records, err
}

// PanicError replaces the result of a fetch that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fetcher panicked: %v", e.Value)
}

// Outcome labels a fetch result for metrics: "success", "panic", or the
// fetch error kind.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return "panic"
	}

	var fetchErr *siri_sm.FetchError
	if errors.As(err, &fetchErr) {
		return string(fetchErr.Kind)
	}

	return "error"
}

type noopRecorder struct{}

func (noopRecorder) FetchStarted(Trigger) {}

func (noopRecorder) FetchFinished(Trigger, string, time.Duration, int) {}

func (noopRecorder) TriggerSkipped(Trigger, SkipReason) {}
