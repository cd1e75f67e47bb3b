package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors for the Planboard server.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	BillingCallsTotal            *prometheus.CounterVec
	SubscriptionTransitionsTotal *prometheus.CounterVec
	WebhookEventsTotal           *prometheus.CounterVec
	LimitDenialsTotal            *prometheus.CounterVec

	ReconcilerQueue        prometheus.Gauge
	ReconcilerRetriesTotal *prometheus.CounterVec

	RateLimitRejectionsTotal *prometheus.CounterVec
	AuthFailuresTotal        *prometheus.CounterVec
	AuthSuccessesTotal       *prometheus.CounterVec

	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"kind", "method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planboard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "method", "path_pattern"}),

		BillingCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_billing_provider_calls_total",
			Help: "Calls made to the billing provider by operation and outcome.",
		}, []string{"operation", "outcome"}),

		SubscriptionTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_subscription_transitions_total",
			Help: "Subscription lifecycle transitions.",
		}, []string{"transition"}),

		WebhookEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_webhook_events_total",
			Help: "Billing webhook events received.",
		}, []string{"type", "outcome"}),

		LimitDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_plan_limit_denials_total",
			Help: "Requests denied by plan limits, by feature.",
		}, []string{"feature"}),

		ReconcilerQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planboard_reconciler_queue_size",
			Help: "Activations waiting to be written to the local mirror.",
		}),

		ReconcilerRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_reconciler_retries_total",
			Help: "Reconciler activation attempts by outcome.",
		}, []string{"outcome"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planboard_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planboard_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BillingCallsTotal,
		m.SubscriptionTransitionsTotal,
		m.WebhookEventsTotal,
		m.LimitDenialsTotal,
		m.ReconcilerQueue,
		m.ReconcilerRetriesTotal,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
	)
	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector exposes the pool statistics returned by stats on
// every scrape.
func (m *Metrics) RegisterDBPoolCollector(stats PoolStatFunc) {
	m.registry.MustRegister(newPoolCollector(stats))
}

func (m *Metrics) ObserveHTTP(kind, method, pattern string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(kind, method, pattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(kind, method, pattern).Observe(elapsed.Seconds())
}

// IncBillingCall implements billing.MetricsRecorder.
func (m *Metrics) IncBillingCall(op, outcome string) {
	m.BillingCallsTotal.WithLabelValues(op, outcome).Inc()
}

// IncSubscriptionTransition implements subscription.MetricsRecorder.
func (m *Metrics) IncSubscriptionTransition(transition string) {
	m.SubscriptionTransitionsTotal.WithLabelValues(transition).Inc()
}

func (m *Metrics) IncWebhookEvent(eventType, outcome string) {
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// IncLimitDenial implements limits.MetricsRecorder.
func (m *Metrics) IncLimitDenial(feature string) {
	m.LimitDenialsTotal.WithLabelValues(feature).Inc()
}

// SetReconcilerQueue and IncReconcilerRetry implement
// subscription.ReconcilerMetrics.
func (m *Metrics) SetReconcilerQueue(n int) {
	m.ReconcilerQueue.Set(float64(n))
}

func (m *Metrics) IncReconcilerRetry(outcome string) {
	m.ReconcilerRetriesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}
