package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tbc-meetup/walletd/internal/gateway"
	"github.com/tbc-meetup/walletd/internal/ledger"
	"github.com/tbc-meetup/walletd/internal/logging"
	"github.com/tbc-meetup/walletd/internal/metrics"
	"github.com/tbc-meetup/walletd/internal/notification"
	"github.com/tbc-meetup/walletd/internal/txn"
	"github.com/tbc-meetup/walletd/internal/wallet"
)

// MeetupDeductor spends wallet balance to join a meetup. Implementations
// must be idempotent per externalRef.
type MeetupDeductor interface {
	DeductForMeetup(ctx context.Context, userID, meetupID, amount int64, externalRef, reason string) (int64, error)
}

// Service drives payment records from INIT to PAID and credits wallets.
type Service struct {
	store    Store
	wallets  *wallet.Service
	gateway  gateway.Gateway
	tx       txn.Transactor
	deductor MeetupDeductor
	notifier notification.Notifier
	logger   *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithDeductor enables auto-deduct after confirmation.
func WithDeductor(d MeetupDeductor) Option {
	return func(s *Service) { s.deductor = d }
}

// WithNotifier sets the notifier used after a credit.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService constructs a payment service.
func NewService(store Store, wallets *wallet.Service, gw gateway.Gateway, tx txn.Transactor, opts ...Option) *Service {
	s := &Service{store: store, wallets: wallets, gateway: gw, tx: tx, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput captures a payment initiation request.
type CreateInput struct {
	UserID  int64
	OrderID string
	Amount  int64
}

// CreateInit reserves the order id and makes sure the user has a wallet. An
// existing order id is returned as stored, even when the amount differs.
func (s *Service) CreateInit(ctx context.Context, in CreateInput) (Record, error) {
	if strings.TrimSpace(in.OrderID) == "" {
		return Record{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}

	existing, err := s.store.FindByOrderID(ctx, in.OrderID)
	if err == nil {
		s.logger.Debug("init already exists", slog.String("order_id", existing.OrderID), slog.Int64("user_id", existing.UserID), slog.Int64("amount", existing.Amount))
		return existing, nil
	}
	if !errors.Is(err, ErrOrderNotFound) {
		return Record{}, err
	}

	if in.Amount <= 0 {
		return Record{}, ErrInvalidAmount
	}
	if in.UserID <= 0 {
		return Record{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	var rec Record
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.wallets.GetOrCreate(ctx, in.UserID); err != nil {
			return err
		}
		now := time.Now().UTC()
		var created bool
		rec, created, err = s.store.Create(ctx, Record{
			ID:        uuid.New(),
			OrderID:   in.OrderID,
			UserID:    in.UserID,
			Amount:    in.Amount,
			State:     StateInit,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err == nil && created {
			metrics.RecordPayment("init", string(StateInit))
		}
		return err
	})
	if err != nil {
		return Record{}, err
	}
	s.logger.Debug("init saved", slog.String("order_id", rec.OrderID), slog.Int64("user_id", rec.UserID), slog.Int64("amount", rec.Amount))
	return rec, nil
}

// Get returns the payment record of orderID.
func (s *Service) Get(ctx context.Context, orderID string) (Record, error) {
	return s.store.FindByOrderID(ctx, orderID)
}

// CancelInit cancels an order that has not been paid.
func (s *Service) CancelInit(ctx context.Context, orderID string) (Record, error) {
	var rec Record
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.store.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if rec.State != StateInit {
			return fmt.Errorf("%w: only INIT orders can be canceled, order is %s", ErrInvalidStateTransition, rec.State)
		}
		if err := rec.TransitTo(StateCanceled); err != nil {
			return err
		}
		return s.store.Save(ctx, rec)
	})
	if err != nil {
		return Record{}, err
	}
	metrics.RecordPayment("cancel", string(rec.State))
	return rec, nil
}

// Fail marks an INIT order FAILED with the processor's reason. Failing an
// already failed order is a no-op.
func (s *Service) Fail(ctx context.Context, orderID, code, message string) (Record, error) {
	var rec Record
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.store.FindForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if rec.State == StateFailed {
			return nil
		}
		if err := rec.TransitTo(StateFailed); err != nil {
			return err
		}
		rec.FailureCode = truncate(code, 64)
		rec.FailureMsg = truncate(message, 255)
		return s.store.Save(ctx, rec)
	})
	if err != nil {
		return Record{}, err
	}
	metrics.RecordPayment("fail", string(rec.State))
	s.logger.Info("payment failed", slog.String("order_id", orderID), slog.String("failure_code", rec.FailureCode))
	return rec, nil
}

// ConfirmInput is a client or webhook confirmation of a completed payment.
type ConfirmInput struct {
	PaymentKey string
	OrderID    string
	Amount     int64
	AutoDeduct bool
	MeetupID   int64
}

// ConfirmResult reports the state after confirmation. JoinError is set when
// the requested meetup deduction failed; the credit stands regardless.
type ConfirmResult struct {
	OrderID        string
	State          State
	CreditedAmount int64
	BalanceAfter   int64
	Credited       bool
	Joined         bool
	JoinError      string
}

// ConfirmAndCredit confirms the payment with the gateway and credits the
// wallet exactly once. Repeated calls for a PAID order return the current
// balance without calling the gateway.
func (s *Service) ConfirmAndCredit(ctx context.Context, in ConfirmInput) (ConfirmResult, error) {
	rec, err := s.store.FindByOrderID(ctx, in.OrderID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if rec.Amount != in.Amount {
		return ConfirmResult{}, fmt.Errorf("%w: order %d, confirm %d", ErrAmountMismatch, rec.Amount, in.Amount)
	}

	if rec.State == StatePaid {
		res, err := s.credit(ctx, rec)
		if err != nil {
			return ConfirmResult{}, err
		}
		metrics.RecordIdempotentHit("confirm")
		return s.afterCredit(ctx, rec, in, res), nil
	}
	if !rec.State.CanTransitTo(StatePaid) {
		return ConfirmResult{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, rec.State, StatePaid)
	}

	resp, err := s.gateway.Confirm(ctx, gateway.ConfirmRequest{PaymentKey: in.PaymentKey, OrderID: rec.OrderID, Amount: rec.Amount})
	if err != nil {
		return ConfirmResult{}, err
	}
	if !resp.Succeeded() {
		if resp.IsTerminalFailure() {
			if _, ferr := s.Fail(ctx, rec.OrderID, resp.Code, resp.Message); ferr != nil {
				s.logger.Error("mark payment failed", slog.String("order_id", rec.OrderID), slog.Any("error", ferr))
			}
		}
		status := "<nil>"
		if resp != nil {
			status = resp.Status
		}
		return ConfirmResult{}, fmt.Errorf("%w: status %s", gateway.ErrGatewayRejected, status)
	}

	paymentKey := resp.PaymentKey
	if paymentKey == "" {
		paymentKey = in.PaymentKey
	}

	var res ConfirmResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.store.FindForUpdate(ctx, rec.OrderID)
		if err != nil {
			return err
		}
		if locked.State != StatePaid {
			if err := locked.TransitTo(StatePaid); err != nil {
				return err
			}
			locked.PaymentKey = paymentKey
			if err := s.store.Save(ctx, locked); err != nil {
				return err
			}
		}
		rec = locked
		res, err = s.credit(ctx, locked)
		return err
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	metrics.RecordPayment("confirm", string(StatePaid))
	s.logger.Info("payment paid", slog.String("order_id", rec.OrderID), slog.String("payment_key", rec.PaymentKey))
	return s.afterCredit(ctx, rec, in, res), nil
}

// credit applies the top-up ledger entry. It is a no-op returning the current
// balance once the order was credited.
func (s *Service) credit(ctx context.Context, rec Record) (ConfirmResult, error) {
	posting, err := s.wallets.Post(ctx, rec.UserID, wallet.Movement{
		Type:           ledger.Credit,
		Amount:         rec.Amount,
		Reason:         ledger.ReasonTopUp,
		RefType:        ledger.RefTypePayment,
		RefID:          rec.OrderID,
		IdempotencyKey: ledger.TopUpKey(rec.OrderID),
	})
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{
		OrderID:        rec.OrderID,
		State:          StatePaid,
		CreditedAmount: rec.Amount,
		BalanceAfter:   posting.Wallet.Balance,
		Credited:       posting.Applied,
	}, nil
}

func (s *Service) afterCredit(ctx context.Context, rec Record, in ConfirmInput, res ConfirmResult) ConfirmResult {
	if res.Credited {
		metrics.RecordCredit(rec.Amount)
		if s.notifier != nil {
			_ = s.notifier.Send(ctx, notification.Message{
				Kind:   notification.KindTopUpCredited,
				UserID: rec.UserID,
				Body:   fmt.Sprintf("Your wallet was credited %d for order %s", rec.Amount, rec.OrderID),
			})
		}
	}

	if !in.AutoDeduct || in.MeetupID <= 0 || s.deductor == nil {
		return res
	}
	balance, err := s.deductor.DeductForMeetup(ctx, rec.UserID, in.MeetupID, rec.Amount,
		ledger.JoinAfterPaymentRef(rec.OrderID), ledger.ReasonMeetupJoinAfterPayment)
	if err != nil {
		s.logger.Error("auto deduct after payment failed",
			slog.String("order_id", rec.OrderID),
			slog.Int64("meetup_id", in.MeetupID),
			slog.Any("error", err),
		)
		res.JoinError = err.Error()
		return res
	}
	res.Joined = true
	res.BalanceAfter = balance
	return res
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
