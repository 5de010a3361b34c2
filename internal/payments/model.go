package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrAmountMismatch         = errors.New("amount does not match the order")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidInput           = errors.New("invalid payment request")
	ErrInvalidStateTransition = errors.New("invalid payment state transition")
	ErrInvalidRefundState     = errors.New("payment is not refundable in its current state")
)

// State is the lifecycle position of a payment record.
type State string

const (
	StateInit              State = "INIT"
	StatePaid              State = "PAID"
	StateFailed            State = "FAILED"
	StateCanceled          State = "CANCELED"
	StateRefundRequested   State = "REFUND_REQUESTED"
	StatePartiallyRefunded State = "PARTIALLY_REFUNDED"
	StateRefunded          State = "REFUNDED"
)

var transitions = map[State][]State{
	StateInit:              {StatePaid, StateFailed, StateCanceled},
	StatePaid:              {StateRefundRequested, StatePartiallyRefunded, StateRefunded},
	StatePartiallyRefunded: {StatePartiallyRefunded, StateRefunded},
	StateRefundRequested:   {StateRefunded},
}

// CanTransitTo reports whether next is reachable from s in one step.
func (s State) CanTransitTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Refundable reports whether a refund may start from s.
func (s State) Refundable() bool {
	return s == StatePaid || s == StatePartiallyRefunded
}

// Record is one top-up attempt identified by its order id.
type Record struct {
	ID             uuid.UUID
	OrderID        string
	UserID         int64
	Amount         int64
	RefundedAmount int64
	State          State
	PaymentKey     string
	FailureCode    string
	FailureMsg     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransitTo moves the record to next or fails with ErrInvalidStateTransition.
func (r *Record) TransitTo(next State) error {
	if !r.State.CanTransitTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, r.State, next)
	}
	r.State = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Refundable returns the amount that has not been refunded yet.
func (r Record) Refundable() int64 {
	return r.Amount - r.RefundedAmount
}
