// Package metrics registers the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvaluationCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replenish_evaluation_cycles_total",
		Help: "Total number of suggestion evaluation cycles",
	}, []string{"trigger", "result"})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "replenish_evaluation_duration_seconds",
		Help:    "Duration of a suggestion evaluation cycle",
		Buckets: prometheus.DefBuckets,
	})

	SuggestionsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replenish_suggestions_generated_total",
		Help: "Total number of reorder suggestions emitted",
	})

	RulesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replenish_rules_skipped_total",
		Help: "Total number of rules skipped for insufficient data",
	})

	CoalescedRefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replenish_coalesced_refreshes_total",
		Help: "Total number of suggestion refreshes served by an in-flight evaluation",
	})

	PurchaseOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "replenish_purchase_orders_created_total",
		Help: "Total number of purchase orders created",
	})

	PurchaseOrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replenish_purchase_order_transitions_total",
		Help: "Total number of purchase order lifecycle actions",
	}, []string{"action", "result"})

	SideChannelFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replenish_side_channel_failures_total",
		Help: "Total number of failed best-effort event publications and exports",
	}, []string{"channel"})

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
