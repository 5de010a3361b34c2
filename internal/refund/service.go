package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tbc-meetup/walletd/internal/gateway"
	"github.com/tbc-meetup/walletd/internal/ledger"
	"github.com/tbc-meetup/walletd/internal/logging"
	"github.com/tbc-meetup/walletd/internal/metrics"
	"github.com/tbc-meetup/walletd/internal/notification"
	"github.com/tbc-meetup/walletd/internal/payments"
	"github.com/tbc-meetup/walletd/internal/txn"
	"github.com/tbc-meetup/walletd/internal/wallet"
)

// ErrRefundExceedsPayment rejects refunds beyond what is left of the original payment.
var ErrRefundExceedsPayment = errors.New("refund exceeds the remaining payment amount")

// Input describes one refund request.
type Input struct {
	OrderID string
	Amount  int64
	Reason  string
}

// Result reports the payment after the refund.
type Result struct {
	OrderID        string
	State          payments.State
	RefundedAmount int64
	TotalRefunded  int64
	BalanceAfter   int64
	Replayed       bool
}

// Service refunds paid orders and debits the refunded amount from the wallet.
type Service struct {
	payments payments.Store
	wallets  *wallet.Service
	ledger   ledger.Store
	gateway  gateway.Gateway
	tx       txn.Transactor
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a refund service.
func NewService(store payments.Store, wallets *wallet.Service, led ledger.Store, gw gateway.Gateway, tx txn.Transactor, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{payments: store, wallets: wallets, ledger: led, gateway: gw, tx: tx, notifier: notifier, logger: logger}
}

// Refund cancels amount at the gateway and debits it from the user's wallet.
// The payment lock, wallet lock, gateway call, debit and state change share
// one transaction; a gateway failure leaves everything as it was. A request
// whose key was already applied returns the current state untouched.
func (s *Service) Refund(ctx context.Context, in Input) (Result, error) {
	if in.Amount <= 0 {
		return Result{}, payments.ErrInvalidAmount
	}
	in.Reason = strings.TrimSpace(in.Reason)
	key := ledger.RefundKey(in.OrderID, in.Amount, in.Reason)

	var (
		res    Result
		userID int64
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := s.payments.FindForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		userID = rec.UserID

		if _, found, err := s.ledger.FindByIdempotencyKey(ctx, key); err != nil {
			return err
		} else if found {
			w, err := s.wallets.Get(ctx, rec.UserID)
			if err != nil {
				return err
			}
			res = Result{
				OrderID:        rec.OrderID,
				State:          rec.State,
				RefundedAmount: in.Amount,
				TotalRefunded:  rec.RefundedAmount,
				BalanceAfter:   w.Balance,
				Replayed:       true,
			}
			return nil
		}

		if !rec.State.Refundable() {
			return fmt.Errorf("%w: %s", payments.ErrInvalidRefundState, rec.State)
		}
		if in.Amount > rec.Refundable() {
			return fmt.Errorf("%w: requested %d, remaining %d", ErrRefundExceedsPayment, in.Amount, rec.Refundable())
		}

		w, err := s.wallets.Lock(ctx, rec.UserID)
		if err != nil {
			return err
		}
		if w.Balance < in.Amount {
			return fmt.Errorf("%w: balance %d, refund %d", wallet.ErrInsufficientFunds, w.Balance, in.Amount)
		}

		resp, err := s.gateway.Cancel(ctx, rec.PaymentKey, gateway.CancelRequest{Amount: in.Amount, Reason: in.Reason})
		if err != nil {
			return err
		}
		if resp != nil && resp.IsTerminalFailure() {
			return fmt.Errorf("%w: cancel status %s", gateway.ErrGatewayRejected, resp.Status)
		}

		next := payments.StatePartiallyRefunded
		reason := ledger.ReasonRefundPartial
		if rec.RefundedAmount+in.Amount >= rec.Amount {
			next = payments.StateRefunded
			reason = ledger.ReasonRefundFull
		}

		posting, err := s.wallets.Post(ctx, rec.UserID, wallet.Movement{
			Type:           ledger.Debit,
			Amount:         in.Amount,
			Reason:         reason,
			RefType:        ledger.RefTypePayment,
			RefID:          rec.OrderID,
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}

		rec.RefundedAmount += in.Amount
		if err := rec.TransitTo(next); err != nil {
			return err
		}
		if err := s.payments.Save(ctx, rec); err != nil {
			return err
		}

		res = Result{
			OrderID:        rec.OrderID,
			State:          rec.State,
			RefundedAmount: in.Amount,
			TotalRefunded:  rec.RefundedAmount,
			BalanceAfter:   posting.Wallet.Balance,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if res.Replayed {
		metrics.RecordIdempotentHit("refund")
		s.logger.Warn("refund replayed", slog.String("order_id", in.OrderID), slog.String("idempotency_key", key))
		return res, nil
	}

	metrics.RecordPayment("refund", string(res.State))
	metrics.RecordRefund(in.Amount)
	s.logger.Info("payment refunded",
		slog.String("order_id", res.OrderID),
		slog.Int64("amount", in.Amount),
		slog.String("state", string(res.State)),
		slog.Int64("balance", res.BalanceAfter),
	)
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:   notification.KindRefundIssued,
			UserID: userID,
			Body:   fmt.Sprintf("Order %s refunded %d", res.OrderID, in.Amount),
		})
	}
	return res, nil
}
