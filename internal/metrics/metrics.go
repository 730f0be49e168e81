package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CheckoutOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_initiations_total",
			Help: "Checkout initiations by provider and outcome code",
		},
		[]string{"provider", "outcome"},
	)

	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_gateway_requests_total",
			Help: "Outbound payment gateway calls by provider, operation and HTTP status class",
		},
		[]string{"provider", "operation", "status"},
	)

	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_gateway_request_duration_seconds",
			Help:    "Latency of outbound payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	WebhookOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payment_callbacks_total",
			Help: "Gateway callbacks (webhooks and redirects) by provider and outcome",
		},
		[]string{"provider", "source", "outcome"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Inbound HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ExpiredPendingPayments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_pending_payments_expired_total",
			Help: "Pending payments moved to expired by the sweeper",
		},
	)
)

// Register adds every collector to reg. Call once at startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		CheckoutOutcomes,
		GatewayRequests,
		GatewayLatency,
		WebhookOutcomes,
		HTTPRequests,
		HTTPLatency,
		ExpiredPendingPayments,
	)
}

// StatusClass buckets an HTTP status into "2xx", "4xx" etc; 0 means the
// request never got a response.
func StatusClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveGateway records one outbound call.
func ObserveGateway(provider, operation string, status int, t *Timer) {
	GatewayRequests.WithLabelValues(provider, operation, StatusClass(status)).Inc()
	GatewayLatency.WithLabelValues(provider, operation).Observe(t.Duration().Seconds())
}
