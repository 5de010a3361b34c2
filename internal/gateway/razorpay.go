package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	rzperrors "github.com/razorpay/razorpay-go/errors"
)

// razorpayPayments is the slice of the razorpay payment resource the adapter uses.
type razorpayPayments interface {
	Capture(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Refund(paymentID string, amount int, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay maps the gateway port onto Razorpay captures and refunds. The
// Razorpay payment id plays the role of the payment key.
type Razorpay struct {
	payments razorpayPayments
	timeout  time.Duration
}

// NewRazorpay builds an adapter from API credentials.
func NewRazorpay(key, secret string, timeout time.Duration) *Razorpay {
	client := razorpay.NewClient(key, secret)
	return newRazorpay(client.Payment, timeout)
}

func newRazorpay(payments razorpayPayments, timeout time.Duration) *Razorpay {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Razorpay{payments: payments, timeout: timeout}
}

// Confirm captures an authorized payment.
func (r *Razorpay) Confirm(ctx context.Context, req ConfirmRequest) (*Response, error) {
	body, err := r.call(ctx, func() (map[string]interface{}, error) {
		return r.payments.Capture(req.PaymentKey, int(req.Amount), map[string]interface{}{"currency": "INR"}, nil)
	})
	if err != nil {
		return nil, err
	}
	status := StatusFailed
	switch str(body["status"]) {
	case "captured":
		status = StatusDone
	case "authorized", "created":
		status = "IN_PROGRESS"
	}
	return &Response{
		PaymentKey: str(body["id"]),
		OrderID:    req.OrderID,
		Status:     status,
		Amount:     num(body["amount"]),
		Code:       str(body["error_code"]),
		Message:    str(body["error_description"]),
	}, nil
}

// Cancel issues a refund against the captured payment.
func (r *Razorpay) Cancel(ctx context.Context, paymentKey string, req CancelRequest) (*Response, error) {
	data := map[string]interface{}{"notes": map[string]interface{}{"reason": req.Reason}}
	body, err := r.call(ctx, func() (map[string]interface{}, error) {
		return r.payments.Refund(paymentKey, int(req.Amount), data, nil)
	})
	if err != nil {
		return nil, err
	}
	if s := str(body["status"]); s == "failed" {
		return nil, fmt.Errorf("%w: refund %s", ErrGatewayRejected, s)
	}
	return &Response{
		PaymentKey: paymentKey,
		Status:     StatusCanceled,
		Amount:     num(body["amount"]),
	}, nil
}

type razorpayResult struct {
	body map[string]interface{}
	err  error
}

// call bounds the SDK call, which takes no context, by the adapter timeout.
func (r *Razorpay) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan razorpayResult, 1)
	go func() {
		body, err := fn()
		done <- razorpayResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, classifyRazorpayError(res.err)
		}
		return res.body, nil
	}
}

// classifyRazorpayError treats transport failures and razorpay 5xx as
// retryable. Anything else is an answer from the API.
func classifyRazorpayError(err error) error {
	var (
		urlErr    *url.Error
		netErr    net.Error
		serverErr *rzperrors.ServerError
	)
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.As(err, &serverErr) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrGatewayRejected, err)
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	}
	return 0
}
