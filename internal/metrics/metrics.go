package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersPlaced counts placement attempts by kind, processor and result
	// (completed, redirect, rejected, error).
	OrdersPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_orders_placed_total",
			Help: "Orders submitted to the Member API.",
		},
		[]string{"kind", "processor", "result"},
	)

	TrackingOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_order_tracking_outcomes_total",
			Help: "Terminal outcomes of order status tracking.",
		},
		[]string{"outcome"},
	)

	TrackingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_order_tracking_active",
			Help: "Order tracking tasks currently polling.",
		},
	)

	StatusQueries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_order_status_query_duration_seconds",
			Help:    "Latency of order status queries made while tracking.",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_cache_invalidations_total",
			Help: "Member views marked stale after a successful order.",
		},
		[]string{"view"},
	)

	CatalogFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_catalog_fallbacks_total",
			Help: "Tier catalog requests served from the fallback dataset.",
		},
	)

	CallbacksForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_payment_callbacks_total",
			Help: "Payment callback tokens forwarded to the Member API.",
		},
		[]string{"source", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served by the gateway.",
		},
		[]string{"method", "path", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of HTTP requests served by the gateway.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "code"},
	)
)
