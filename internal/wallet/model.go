package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tbc-meetup/walletd/internal/ledger"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Wallet is the per-user running balance. Balance is authoritative only while
// it agrees with the signed sum of the wallet's ledger entries.
type Wallet struct {
	ID        uuid.UUID
	UserID    int64
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Movement describes one credit or debit to apply to a wallet.
type Movement struct {
	Type           ledger.EntryType
	Amount         int64
	Reason         string
	RefType        string
	RefID          string
	IdempotencyKey string
}

// Posting is the outcome of Service.Post. Applied is false when the
// idempotency key had already been used and nothing changed.
type Posting struct {
	Wallet  Wallet
	Entry   ledger.Entry
	Applied bool
}
