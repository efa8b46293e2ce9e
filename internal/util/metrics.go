package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_events_consumed_total",
		Help: "Total number of lifecycle events consumed",
	}, []string{"type"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_events_dropped_total",
		Help: "Total number of lifecycle events dropped without retry",
	}, []string{"reason"})

	DebitsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_debits_applied_total",
		Help: "Total number of orders debited",
	})

	CreditsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_credits_applied_total",
		Help: "Total number of orders credited (reversals)",
	})

	ReroutesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_reroutes_total",
		Help: "Total number of orders rerouted to on-hold",
	})

	ReversalErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invalid_reversals_total",
		Help: "Total number of credits requested without a prior debit",
	})

	ItemsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mutation_items_skipped_total",
		Help: "Total number of line items skipped during a mutation",
	}, []string{"reason"})

	LedgerOpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_ledger_op_latency_seconds",
		Help:    "Latency of stock ledger operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	NotificationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of notification publishes that failed",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
