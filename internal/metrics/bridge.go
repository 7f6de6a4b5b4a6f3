// Package metrics exposes Prometheus metrics for the Connect bridge.
// All methods are nil-safe so components can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bridge holds the registry and meters for one bridge instance.
type Bridge struct {
	Registry *prometheus.Registry

	surfacesCreated   prometheus.Counter
	surfacesDestroyed prometheus.Counter
	surfacesLive      prometheus.Gauge
	messages          *prometheus.CounterVec
	queued            prometheus.Counter
	pending           prometheus.Gauge
	dropped           *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	events            *prometheus.CounterVec
	timeToReady       prometheus.Histogram
}

// New registers the bridge meters on a fresh registry.
func New() *Bridge {
	reg := prometheus.NewRegistry()

	b := &Bridge{
		Registry: reg,
		surfacesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connect_surfaces_created_total",
			Help: "Surfaces created by the bridge transport.",
		}),
		surfacesDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connect_surfaces_destroyed_total",
			Help: "Surfaces torn down by the bridge transport.",
		}),
		surfacesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connect_surfaces_live",
			Help: "Surfaces currently alive (0 or 1).",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connect_messages_total",
			Help: "Messages exchanged with the page.",
		}, []string{"direction", "action"}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connect_messages_queued_total",
			Help: "Outbound messages queued before the page was ready.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connect_pending_messages",
			Help: "Outbound messages waiting for the page to become ready.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connect_inbound_dropped_total",
			Help: "Inbound messages dropped before dispatch.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connect_lifecycle_transitions_total",
			Help: "Lifecycle state transitions.",
		}, []string{"from", "to"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connect_events_delivered_total",
			Help: "Events delivered to the consumer callbacks.",
		}, []string{"event_type"}),
		timeToReady: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "connect_time_to_ready_seconds",
			Help:    "Time from surface creation to MESSAGING_READY.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}

	reg.MustRegister(
		b.surfacesCreated, b.surfacesDestroyed, b.surfacesLive,
		b.messages, b.queued, b.pending, b.dropped,
		b.transitions, b.events, b.timeToReady,
	)
	return b
}

// Handler serves the registry in Prometheus exposition format.
func (b *Bridge) Handler() http.Handler {
	if b == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(b.Registry, promhttp.HandlerOpts{})
}

func (b *Bridge) SurfaceCreated() {
	if b == nil {
		return
	}
	b.surfacesCreated.Inc()
	b.surfacesLive.Set(1)
	b.pending.Set(0)
}

func (b *Bridge) SurfaceDestroyed() {
	if b == nil {
		return
	}
	b.surfacesDestroyed.Inc()
	b.surfacesLive.Set(0)
	b.pending.Set(0)
}

// Sent counts an outbound message; pending is the queue length afterwards.
func (b *Bridge) Sent(action string, queued bool, pending int) {
	if b == nil {
		return
	}
	b.messages.WithLabelValues("outbound", action).Inc()
	if queued {
		b.queued.Inc()
	}
	b.pending.Set(float64(pending))
}

func (b *Bridge) Received(action string) {
	if b == nil {
		return
	}
	b.messages.WithLabelValues("inbound", action).Inc()
}

func (b *Bridge) Dropped(reason string) {
	if b == nil {
		return
	}
	b.dropped.WithLabelValues(reason).Inc()
}

func (b *Bridge) Ready(since time.Duration) {
	if b == nil {
		return
	}
	b.timeToReady.Observe(since.Seconds())
	b.pending.Set(0)
}

func (b *Bridge) Transition(from, to string) {
	if b == nil {
		return
	}
	b.transitions.WithLabelValues(from, to).Inc()
}

func (b *Bridge) EventDelivered(eventType string) {
	if b == nil {
		return
	}
	b.events.WithLabelValues(eventType).Inc()
}
