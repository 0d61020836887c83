// Package metrics exposes refresh and freshness measurements to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/travigo/stopdisplay/pkg/freshness"
	"github.com/travigo/stopdisplay/pkg/refresh"
)

const namespace = "stopdisplay"

// Registry holds the collectors for one stop. It implements refresh.Recorder
// and its Observe method is a freshness.Observer.
type Registry struct {
	registry *prometheus.Registry

	fetchTotal      *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	skippedTotal    *prometheus.CounterVec
	inFlight        prometheus.Gauge
	departures      prometheus.Gauge
	state           *prometheus.GaugeVec
	lastSuccessTime prometheus.Gauge
}

func New(stopReference string) *Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	labels := prometheus.Labels{"stop": stopReference}

	return &Registry{
		registry: registry,

		fetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "fetch_total",
			Help:        "Departure fetches by trigger and outcome",
			ConstLabels: labels,
		}, []string{"trigger", "outcome"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "fetch_duration_seconds",
			Help:        "Duration of departure fetches in seconds",
			ConstLabels: labels,
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"trigger"}),
		skippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "refresh_skipped_total",
			Help:        "Refresh triggers dropped because a fetch was in flight or the coordinator was stopped",
			ConstLabels: labels,
		}, []string{"trigger", "reason"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "fetch_in_flight",
			Help:        "1 while a departure fetch is running",
			ConstLabels: labels,
		}),
		departures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "departures",
			Help:        "Departure records currently held",
			ConstLabels: labels,
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "freshness_state",
			Help:        "1 for the current freshness state, 0 otherwise",
			ConstLabels: labels,
		}, []string{"state"}),
		lastSuccessTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time of the last successful fetch",
			ConstLabels: labels,
		}),
	}
}

// Gatherer is what the /metrics handler serves.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) FetchStarted(refresh.Trigger) {
	r.inFlight.Set(1)
}

func (r *Registry) FetchFinished(trigger refresh.Trigger, outcome string, duration time.Duration, _ int) {
	r.inFlight.Set(0)
	r.fetchTotal.WithLabelValues(string(trigger), outcome).Inc()
	r.fetchDuration.WithLabelValues(string(trigger)).Observe(duration.Seconds())
}

func (r *Registry) TriggerSkipped(trigger refresh.Trigger, reason refresh.SkipReason) {
	r.skippedTotal.WithLabelValues(string(trigger), string(reason)).Inc()
}

// Observe tracks the store. It only touches in-memory collectors so it is
// safe to subscribe directly.
func (r *Registry) Observe(transition freshness.Transition) {
	snapshot := transition.Snapshot

	for _, state := range []freshness.State{freshness.Idle, freshness.Loading, freshness.Success, freshness.Error} {
		value := 0.0
		if state == snapshot.State {
			value = 1
		}
		r.state.WithLabelValues(state.String()).Set(value)
	}

	r.departures.Set(float64(len(snapshot.Records)))
	if snapshot.HasLastSuccess() {
		r.lastSuccessTime.Set(float64(snapshot.LastSuccessAt.Unix()))
	}
}
