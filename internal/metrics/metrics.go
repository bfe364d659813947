package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fooddelivery_realtime_connections_active",
		Help: "Current number of admitted realtime connections.",
	})

	ConnectionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddelivery_realtime_connections_rejected_total",
		Help: "Total number of connection attempts rejected at the gate.",
	},
		[]string{"reason"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddelivery_events_published_total",
		Help: "Total number of events published to rooms.",
	},
		[]string{"type"},
	)

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddelivery_events_dropped_total",
		Help: "Total number of events dropped instead of delivered.",
	},
		[]string{"reason"},
	)

	OverflowDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fooddelivery_overflow_disconnects_total",
		Help: "Total number of connections force-closed for a full send buffer.",
	})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddelivery_order_transitions_total",
		Help: "Total number of committed order status transitions.",
	},
		[]string{"to"},
	)

	TransitionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fooddelivery_order_transition_errors_total",
		Help: "Total number of rejected order status transitions.",
	},
		[]string{"reason"},
	)

	OrderCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fooddelivery_order_cache_items",
		Help: "Current number of items in the order cache.",
	})
)
