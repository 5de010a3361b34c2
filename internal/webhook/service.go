package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tbc-meetup/walletd/internal/gateway"
	"github.com/tbc-meetup/walletd/internal/logging"
	"github.com/tbc-meetup/walletd/internal/metrics"
	"github.com/tbc-meetup/walletd/internal/payments"
)

const batchSize = 100

// Payments is the slice of the payment service driven by notifications.
type Payments interface {
	Get(ctx context.Context, orderID string) (payments.Record, error)
	ConfirmAndCredit(ctx context.Context, in payments.ConfirmInput) (payments.ConfirmResult, error)
	Fail(ctx context.Context, orderID, code, message string) (payments.Record, error)
	CancelInit(ctx context.Context, orderID string) (payments.Record, error)
}

// Service records gateway notifications and applies them to payments.
type Service struct {
	store       Store
	payments    Payments
	secret      []byte
	maxAttempts int
	logger      *slog.Logger
}

// NewService builds a webhook service. An empty secret disables signature checks.
func NewService(store Store, p Payments, secret string, maxAttempts int, logger *slog.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, payments: p, secret: []byte(secret), maxAttempts: maxAttempts, logger: logger}
}

// Receive verifies and stores a notification, then processes it once. A
// redelivered event is acknowledged without processing. Processing errors
// are kept on the event for the dispatcher and not returned.
func (s *Service) Receive(ctx context.Context, body []byte, signature string) (Event, bool, error) {
	if len(s.secret) > 0 {
		if err := Verify(s.secret, body, signature); err != nil {
			return Event{}, false, err
		}
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, false, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Data.OrderID == "" || p.Data.Status == "" {
		return Event{}, false, fmt.Errorf("%w: orderId and status are required", ErrInvalidPayload)
	}

	now := time.Now().UTC()
	ev := Event{
		ID:         uuid.New(),
		EventID:    p.DedupKey(),
		EventType:  p.EventType,
		Status:     StatusPending,
		Payload:    body,
		ReceivedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	inserted, err := s.store.Insert(ctx, ev)
	if err != nil {
		return Event{}, false, err
	}
	if !inserted {
		existing, err := s.store.FindByEventID(ctx, ev.EventID)
		if err != nil {
			return Event{}, false, err
		}
		s.logger.Info("duplicate webhook ignored", slog.String("event_id", ev.EventID))
		metrics.RecordWebhookEvent(existing.EventType, "duplicate")
		return existing, true, nil
	}

	processed, err := s.Process(ctx, ev)
	if err != nil {
		return Event{}, false, err
	}
	return processed, false, nil
}

// Process applies one event and records the outcome on it. The returned
// error is a storage failure; handling failures mark the event FAILED.
func (s *Service) Process(ctx context.Context, ev Event) (Event, error) {
	ev.AttemptCount++
	handleErr := s.handle(ctx, ev)

	now := time.Now().UTC()
	ev.UpdatedAt = now
	if handleErr != nil {
		ev.Status = StatusFailed
		ev.LastError = truncate(handleErr.Error(), 1000)
		s.logger.Warn("webhook processing failed",
			slog.String("event_id", ev.EventID),
			slog.Int("attempt", ev.AttemptCount),
			slog.Any("error", handleErr),
		)
	} else {
		ev.Status = StatusSuccess
		ev.LastError = ""
		ev.ProcessedAt = &now
	}
	metrics.RecordWebhookEvent(ev.EventType, string(ev.Status))

	if err := s.store.Save(ctx, ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (s *Service) handle(ctx context.Context, ev Event) error {
	var p Payload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	data := p.Data

	var err error
	switch strings.ToUpper(data.Status) {
	case gateway.StatusDone, gateway.StatusSuccess:
		amount := data.TotalAmount
		if amount == 0 {
			rec, gerr := s.payments.Get(ctx, data.OrderID)
			if gerr != nil {
				return gerr
			}
			amount = rec.Amount
		}
		_, err = s.payments.ConfirmAndCredit(ctx, payments.ConfirmInput{PaymentKey: data.PaymentKey, OrderID: data.OrderID, Amount: amount})
	case gateway.StatusAborted, gateway.StatusExpired, gateway.StatusFailed:
		_, err = s.payments.Fail(ctx, data.OrderID, data.Code, data.Message)
	case gateway.StatusCanceled:
		_, err = s.payments.CancelInit(ctx, data.OrderID)
	default:
		s.logger.Debug("webhook status ignored", slog.String("event_id", ev.EventID), slog.String("status", data.Status))
		return nil
	}

	if errors.Is(err, payments.ErrInvalidStateTransition) {
		s.logger.Info("stale webhook ignored",
			slog.String("event_id", ev.EventID),
			slog.String("order_id", data.OrderID),
			slog.String("status", data.Status),
		)
		return nil
	}
	return err
}

// DispatchPending retries stored events that have not succeeded yet, oldest
// first, and returns how many were attempted.
func (s *Service) DispatchPending(ctx context.Context) (int, error) {
	events, err := s.store.ListRetryable(ctx, s.maxAttempts, batchSize)
	if err != nil {
		return 0, err
	}
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := s.Process(ctx, ev); err != nil {
			return i, err
		}
	}
	return len(events), nil
}

// Run retries pending events every interval until ctx is canceled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.DispatchPending(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("webhook dispatch failed", slog.Any("error", err))
			} else if n > 0 {
				s.logger.Info("webhook events dispatched", slog.Int("count", n))
			}
		}
	}
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
