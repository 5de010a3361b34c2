package gateway

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Static approves every request unless the hooks say otherwise. It backs
// development setups and tests.
type Static struct {
	ConfirmFunc func(ctx context.Context, req ConfirmRequest) (*Response, error)
	CancelFunc  func(ctx context.Context, paymentKey string, req CancelRequest) (*Response, error)

	confirms atomic.Int64
	cancels  atomic.Int64
}

// Confirm returns a DONE response echoing the request.
func (s *Static) Confirm(ctx context.Context, req ConfirmRequest) (*Response, error) {
	s.confirms.Add(1)
	if s.ConfirmFunc != nil {
		return s.ConfirmFunc(ctx, req)
	}
	key := req.PaymentKey
	if key == "" {
		key = uuid.NewString()
	}
	return &Response{PaymentKey: key, OrderID: req.OrderID, Status: StatusDone, Amount: req.Amount}, nil
}

// Cancel returns a CANCELED response.
func (s *Static) Cancel(ctx context.Context, paymentKey string, req CancelRequest) (*Response, error) {
	s.cancels.Add(1)
	if s.CancelFunc != nil {
		return s.CancelFunc(ctx, paymentKey, req)
	}
	return &Response{PaymentKey: paymentKey, Status: StatusCanceled, Amount: req.Amount}, nil
}

// Confirms returns how many confirm calls were made.
func (s *Static) Confirms() int64 { return s.confirms.Load() }

// Cancels returns how many cancel calls were made.
func (s *Static) Cancels() int64 { return s.cancels.Load() }
