// Package metrics exposes Prometheus instruments for the HTTP surface
// and the payment pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	webhookEvents  *prometheus.CounterVec
	amountMismatch *prometheus.CounterVec
	pendingApplied prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appforge_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_webhook_events_total",
			Help: "Webhook notifications by provider and outcome.",
		}, []string{"provider", "outcome"}),
		amountMismatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_payment_amount_mismatch_total",
			Help: "Notifications whose paid amount disagreed with the expected charge.",
		}, []string{"provider"}),
		pendingApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "appforge_pending_downgrades_applied_total",
			Help: "Deferred downgrades promoted by the scheduler.",
		}),
	}

	prometheus.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.webhookEvents,
		m.amountMismatch,
		m.pendingApplied,
	)
	return m
}

func (m *Metrics) RecordWebhookEvent(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordAmountMismatch(provider string) {
	if m == nil {
		return
	}
	m.amountMismatch.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordPendingApplied(count int) {
	if m == nil {
		return
	}
	m.pendingApplied.Add(float64(count))
}

// GinMiddleware instruments every request with count and latency.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
