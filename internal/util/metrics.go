package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchase_orders_created_total",
		Help: "Total number of purchase orders created",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchase_orders_completed_total",
		Help: "Total number of purchase orders completed",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_orders_failed_total",
		Help: "Total number of failed purchase orders",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchase_orders_cancelled_total",
		Help: "Total number of cancelled purchase orders",
	})

	ScrapesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "merchant_scrapes_total",
		Help: "Total scrape attempts by merchant and result",
	}, []string{"merchant", "result"})

	ScrapeCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "merchant_scrape_cache_hits_total",
		Help: "Total scrape dispatches skipped due to a fresh cache entry",
	})

	MerchantsDeactivatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "merchants_deactivated_total",
		Help: "Total merchants deactivated by the circuit breaker",
	})

	ScrapeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "merchant_scrape_latency_seconds",
		Help:    "Latency of merchant scrape attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"merchant"})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_decisions_total",
		Help: "Total oracle decisions by result",
	}, []string{"result"})

	DecisionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_decision_latency_seconds",
		Help:    "Latency of oracle decision round trips",
		Buckets: prometheus.DefBuckets,
	})

	CheckoutStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_steps_total",
		Help: "Total checkout steps by step name and result",
	}, []string{"step", "result"})

	CheckoutFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_fallbacks_total",
		Help: "Total fallback strategies attempted by step",
	}, []string{"step"})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment attempts",
	})

	PaymentFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_failed_total",
		Help: "Total number of failed payments",
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
