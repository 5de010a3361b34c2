package gateway

import (
	"context"
	"errors"
)

var (
	// ErrGatewayRejected is returned when the processor answers with a
	// non-success status or refuses the request.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
	// ErrGatewayUnavailable covers transport failures, timeouts and 5xx answers.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Processor statuses.
const (
	StatusDone     = "DONE"
	StatusSuccess  = "SUCCESS"
	StatusCanceled = "CANCELED"
	StatusAborted  = "ABORTED"
	StatusExpired  = "EXPIRED"
	StatusFailed   = "FAILED"
)

// ConfirmRequest asks the processor to approve a payment the client completed.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// CancelRequest cancels all or part of an approved payment.
type CancelRequest struct {
	Amount int64  `json:"cancelAmount"`
	Reason string `json:"cancelReason"`
}

// Response is the processor's view of a payment.
type Response struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	Amount     int64  `json:"totalAmount"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Succeeded reports whether the payment was approved.
func (r *Response) Succeeded() bool {
	return r != nil && (r.Status == StatusDone || r.Status == StatusSuccess)
}

// IsTerminalFailure reports whether the processor will never approve the payment.
func (r *Response) IsTerminalFailure() bool {
	if r == nil {
		return false
	}
	switch r.Status {
	case StatusAborted, StatusExpired, StatusFailed:
		return true
	}
	return false
}

// Gateway is the synchronous port to the external payment processor.
type Gateway interface {
	Confirm(ctx context.Context, req ConfirmRequest) (*Response, error)
	Cancel(ctx context.Context, paymentKey string, req CancelRequest) (*Response, error)
}
