package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/api/v1/payments/confirm", "200", 0.2)
	RecordHTTPRequest("POST", "/api/v1/payments/confirm", "200", 0.1)
	RecordHTTPRequest("POST", "/api/v1/payments/confirm", "402", 0.05)

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/payments/confirm", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/payments/confirm", "402")))
}

func TestRecordPaymentAndAmounts(t *testing.T) {
	PaymentsTotal.Reset()

	RecordPayment("confirm", "PAID")
	RecordPayment("refund", "PARTIALLY_REFUNDED")

	before := testutil.ToFloat64(WalletCreditedAmount)
	RecordCredit(12_345)

	assert.Equal(t, float64(1), testutil.ToFloat64(PaymentsTotal.WithLabelValues("confirm", "PAID")))
	assert.Equal(t, float64(1), testutil.ToFloat64(PaymentsTotal.WithLabelValues("refund", "PARTIALLY_REFUNDED")))
	assert.Equal(t, before+12_345, testutil.ToFloat64(WalletCreditedAmount))
}

func TestRecordReconcile(t *testing.T) {
	ReconcileRunsTotal.Reset()

	RecordReconcile("report", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ReconcileMismatches))

	RecordReconcile("fix", 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(ReconcileMismatches))
	assert.Equal(t, float64(1), testutil.ToFloat64(ReconcileRunsTotal.WithLabelValues("fix")))
}

func TestRecordGatewayCall(t *testing.T) {
	GatewayCallsTotal.Reset()

	RecordGatewayCall("confirm", "ok", 0.3)
	RecordGatewayCall("confirm", "unavailable", 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(GatewayCallsTotal.WithLabelValues("confirm", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(GatewayCallsTotal.WithLabelValues("confirm", "unavailable")))
}
