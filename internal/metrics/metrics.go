package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_payments_total",
			Help: "Payment record outcomes by operation and state",
		},
		[]string{"operation", "state"},
	)

	WalletCreditedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletd_wallet_credited_amount_total",
			Help: "Sum of top-up credits applied to wallets, in minor units",
		},
	)

	RefundedAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletd_refunded_amount_total",
			Help: "Sum of refunds debited from wallets, in minor units",
		},
	)

	IdempotentHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_idempotent_hits_total",
			Help: "Replayed movements absorbed by an existing idempotency key",
		},
		[]string{"reason"},
	)

	GatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_gateway_calls_total",
			Help: "Calls to the payment gateway by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletd_gateway_call_duration_seconds",
			Help:    "Payment gateway call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ReconcileMismatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletd_reconcile_mismatches",
			Help: "Wallets whose balance disagreed with the ledger on the last run",
		},
	)

	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_reconcile_runs_total",
			Help: "Reconciliation runs by mode",
		},
		[]string{"mode"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletd_webhook_events_total",
			Help: "Webhook events by type and processing status",
		},
		[]string{"event_type", "status"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordPayment(operation, state string) {
	PaymentsTotal.WithLabelValues(operation, state).Inc()
}

func RecordCredit(amount int64) {
	WalletCreditedAmount.Add(float64(amount))
}

func RecordRefund(amount int64) {
	RefundedAmount.Add(float64(amount))
}

func RecordIdempotentHit(reason string) {
	IdempotentHitsTotal.WithLabelValues(reason).Inc()
}

func RecordGatewayCall(operation, outcome string, duration float64) {
	GatewayCallsTotal.WithLabelValues(operation, outcome).Inc()
	GatewayCallDuration.WithLabelValues(operation).Observe(duration)
}

func RecordReconcile(mode string, mismatches int) {
	ReconcileRunsTotal.WithLabelValues(mode).Inc()
	ReconcileMismatches.Set(float64(mismatches))
}

func RecordWebhookEvent(eventType, status string) {
	WebhookEventsTotal.WithLabelValues(eventType, status).Inc()
}
