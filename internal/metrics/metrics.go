package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// Event bus metrics
	EventsPosted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_events_posted_total",
			Help: "Total number of events posted to the local dispatcher by event type",
		},
		[]string{"event"},
	)

	ListenerDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_listener_deliveries_total",
			Help: "Total number of listener invocations completed",
		},
	)

	ListenerPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_listener_panics_total",
			Help: "Total number of listener invocations that panicked",
		},
	)

	ListenersRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_listeners_registered",
			Help: "Number of listeners currently registered with the dispatcher",
		},
	)

	// Relay metrics
	EventsRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_events_relayed_total",
			Help: "Total number of envelopes relayed through the broker by direction",
		},
		[]string{"direction"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_events_dropped_total",
			Help: "Total number of events dropped by reason",
		},
		[]string{"reason"},
	)

	RelayLocalMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_relay_local_mode",
			Help: "Whether the relay runs in local-only mode (1 = local, 0 = connected)",
		},
	)

	// Locking metrics
	LocksHeld = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_locks_held",
			Help: "Number of entities currently locked for editing",
		},
	)

	LockTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_lock_transitions_total",
			Help: "Total number of lock transitions by action",
		},
		[]string{"action"},
	)

	// Purchase metrics
	PurchaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_purchase_transitions_total",
			Help: "Total number of purchases entering a status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(EventsPosted)
	prometheus.MustRegister(ListenerDeliveries)
	prometheus.MustRegister(ListenerPanics)
	prometheus.MustRegister(ListenersRegistered)
	prometheus.MustRegister(EventsRelayed)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(RelayLocalMode)
	prometheus.MustRegister(LocksHeld)
	prometheus.MustRegister(LockTransitions)
	prometheus.MustRegister(PurchaseTransitions)
}

// Handler returns the Prometheus scrape handler adapted for fasthttp.
func Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}
