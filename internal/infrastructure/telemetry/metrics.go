package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric namespace
const metricsNamespace = "meterly"

// Delivery results for webhook_deliveries_total
const (
	DeliverySuccess = "success"
	DeliveryFailure = "failure"
)

// Metrics holds the Prometheus collectors for business and HTTP metrics.
// A nil *Metrics is valid and records nothing.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Metrics struct {
	registry *prometheus.Registry

	creditsCharged      prometheus.Counter
	creditsGranted      *prometheus.CounterVec
	insufficientCredits prometheus.Counter
	gamificationEvents  *prometheus.CounterVec
	badgesEarned        prometheus.Counter
	couponsRedeemed     prometheus.Counter
	webhookDeliveries   *prometheus.CounterVec
	eventsDropped       *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		creditsCharged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "credits_charged_total",
			Help:      "Total credits debited by charges.",
		}),
		creditsGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "credits_granted_total",
			Help:      "Total credits added, by ledger kind.",
		}, []string{"kind"}),
		insufficientCredits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "insufficient_credits_total",
			Help:      "Charges rejected because the balance was too low.",
		}),
		gamificationEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gamification_events_total",
			Help:      "Recorded gamification events, by event type.",
		}, []string{"event_type"}),
		badgesEarned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "badges_earned_total",
			Help:      "Badge changes produced by recomputation.",
		}),
		couponsRedeemed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "coupons_redeemed_total",
			Help:      "Successful coupon redemptions.",
		}),
		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook POST attempts, by result.",
		}, []string{"result"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_dropped_total",
			Help:      "Domain events dropped because the dispatch queue was full.",
		}, []string{"event_type"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.creditsCharged,
		m.creditsGranted,
		m.insufficientCredits,
		m.gamificationEvents,
		m.badgesEarned,
		m.couponsRedeemed,
		m.webhookDeliveries,
		m.eventsDropped,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordCharge counts a successful debit
func (m *Metrics) RecordCharge(amount int64) {
	if m == nil {
		return
	}
	m.creditsCharged.Add(float64(amount))
}

// RecordGrant counts credits added with the given ledger kind
func (m *Metrics) RecordGrant(kind string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.creditsGranted.WithLabelValues(kind).Add(float64(amount))
}

// RecordInsufficientCredits counts a rejected charge
func (m *Metrics) RecordInsufficientCredits() {
	if m == nil {
		return
	}
	m.insufficientCredits.Inc()
}

// RecordGamificationEvent counts an event and, if earned, a badge change
func (m *Metrics) RecordGamificationEvent(eventType string, badgeChanged bool) {
	if m == nil {
		return
	}
	m.gamificationEvents.WithLabelValues(eventType).Inc()
	if badgeChanged {
		m.badgesEarned.Inc()
	}
}

// RecordCouponRedeemed counts a redemption
func (m *Metrics) RecordCouponRedeemed() {
	if m == nil {
		return
	}
	m.couponsRedeemed.Inc()
}

// RecordWebhookDelivery counts one POST attempt
func (m *Metrics) RecordWebhookDelivery(success bool) {
	if m == nil {
		return
	}
	result := DeliveryFailure
	if success {
		result = DeliverySuccess
	}
	m.webhookDeliveries.WithLabelValues(result).Inc()
}

// RecordEventDropped counts an event the bus could not queue
func (m *Metrics) RecordEventDropped(eventType string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

// GinMiddleware observes request durations labelled by route template, so
// path parameters do not explode cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
