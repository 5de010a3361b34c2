package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbc-meetup/walletd/internal/ledger"
	"github.com/tbc-meetup/walletd/internal/logging"
	"github.com/tbc-meetup/walletd/internal/txn"
)

// Service applies ledger-backed balance movements to wallets.
type Service struct {
	store  Store
	ledger ledger.Store
	tx     txn.Transactor
	logger *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(store Store, ledger ledger.Store, tx txn.Transactor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, ledger: ledger, tx: tx, logger: logger}
}

// GetOrCreate returns the user's wallet, creating an empty one on first access.
func (s *Service) GetOrCreate(ctx context.Context, userID int64) (Wallet, error) {
	return s.store.GetOrCreate(ctx, userID)
}

// Get retrieves the user's wallet.
func (s *Service) Get(ctx context.Context, userID int64) (Wallet, error) {
	return s.store.FindByUserID(ctx, userID)
}

// Entries lists ledger movements of the user's wallet, newest first.
func (s *Service) Entries(ctx context.Context, userID int64, limit, offset int) ([]ledger.Entry, error) {
	w, err := s.store.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListByWallet(ctx, w.ID, limit, offset)
}

// Lock acquires the wallet row lock. It must run inside a transaction.
func (s *Service) Lock(ctx context.Context, userID int64) (Wallet, error) {
	return s.store.FindForUpdate(ctx, userID)
}

// Post locks the wallet, appends the ledger entry and adjusts the balance in
// one transaction, joining the caller's transaction when there is one. A
// reused idempotency key leaves the wallet untouched and returns Applied=false.
func (s *Service) Post(ctx context.Context, userID int64, m Movement) (Posting, error) {
	if m.Amount <= 0 {
		return Posting{}, ErrInvalidAmount
	}

	var posting Posting
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		w, err := s.store.FindForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		if m.Type == ledger.Debit {
			if _, found, err := s.ledger.FindByIdempotencyKey(ctx, m.IdempotencyKey); err != nil {
				return err
			} else if !found && w.Balance < m.Amount {
				return fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientFunds, w.Balance, m.Amount)
			}
		}

		entry, err := s.ledger.Append(ctx, ledger.Entry{
			WalletID:       w.ID,
			Type:           m.Type,
			Amount:         m.Amount,
			Reason:         m.Reason,
			RefType:        m.RefType,
			RefID:          m.RefID,
			IdempotencyKey: m.IdempotencyKey,
		})
		if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
			s.logger.Warn("idempotent ledger hit",
				slog.String("idempotency_key", m.IdempotencyKey),
				slog.String("wallet_id", w.ID.String()),
			)
			posting = Posting{Wallet: w}
			return nil
		}
		if err != nil {
			return err
		}

		w.Balance += entry.Signed()
		w.UpdatedAt = time.Now().UTC()
		if err := s.store.Save(ctx, w); err != nil {
			return err
		}
		posting = Posting{Wallet: w, Entry: entry, Applied: true}
		return nil
	})
	if err != nil {
		return Posting{}, err
	}

	if posting.Applied {
		s.logger.Info("wallet posted",
			slog.Int64("user_id", userID),
			slog.String("type", string(m.Type)),
			slog.Int64("amount", m.Amount),
			slog.String("reason", m.Reason),
			slog.Int64("balance", posting.Wallet.Balance),
		)
	}
	return posting, nil
}
