package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateIdempotencyKey indicates the movement was already applied.
	// Callers treat it as a no-op rather than a failure.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidEntry rejects entries with a non-positive amount, unknown type
	// or missing idempotency key.
	ErrInvalidEntry = errors.New("invalid ledger entry")
)

// EntryType is the direction of a movement.
type EntryType string

const (
	Credit EntryType = "CREDIT"
	Debit  EntryType = "DEBIT"
)

// Reasons and reference types written by the payment flows.
const (
	ReasonTopUp                  = "TOPUP"
	ReasonRefundPartial          = "REFUND_PARTIAL"
	ReasonRefundFull             = "REFUND_FULL"
	ReasonMeetupJoin             = "MEETUP_JOIN"
	ReasonMeetupJoinAfterPayment = "MEETUP_JOIN_AFTER_PAYMENT"
	ReasonReconcile              = "RECONCILE"

	RefTypePayment = "PAYMENT"
	RefTypeMeetup  = "MEETUP"
)

// Entry is one immutable wallet movement.
type Entry struct {
	ID             uuid.UUID
	WalletID       uuid.UUID
	Type           EntryType
	Amount         int64
	Reason         string
	RefType        string
	RefID          string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Signed returns the amount with the sign implied by the entry type.
func (e Entry) Signed() int64 {
	if e.Type == Debit {
		return -e.Amount
	}
	return e.Amount
}

// Validate checks the fields every backend requires before insert.
func (e Entry) Validate() error {
	if e.Type != Credit && e.Type != Debit {
		return fmt.Errorf("%w: type %q", ErrInvalidEntry, e.Type)
	}
	if e.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	}
	if e.IdempotencyKey == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidEntry)
	}
	if e.WalletID == uuid.Nil {
		return fmt.Errorf("%w: wallet id is required", ErrInvalidEntry)
	}
	return nil
}

// Store is the append-only movement log.
type Store interface {
	// Append inserts the entry or fails with ErrDuplicateIdempotencyKey.
	Append(ctx context.Context, entry Entry) (Entry, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Entry, bool, error)
	// SumSigned returns credits minus debits for the wallet in one aggregate read.
	SumSigned(ctx context.Context, walletID uuid.UUID) (int64, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]Entry, error)
}

// TopUpKey is the idempotency key of the credit applied by a confirmed order.
func TopUpKey(orderID string) string {
	return "TOPUP:" + orderID
}

// RefundKey distinguishes repeated partial refunds of different amounts or reasons.
func RefundKey(orderID string, amount int64, reason string) string {
	return fmt.Sprintf("REFUND:%s:%d:%s", orderID, amount, reason)
}

// JoinAfterPaymentRef is the external reference of the meetup deduction
// triggered by a confirm call.
func JoinAfterPaymentRef(orderID string) string {
	return "PAYMENT_CONFIRM_JOIN:" + orderID
}

func prepare(entry Entry) (Entry, error) {
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return entry, nil
}
